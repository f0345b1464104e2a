package domain

import "time"

// EventType represents the type of stream event
type EventType string

const (
	EventPhaseStart       EventType = "phase_start"
	EventPhaseDone        EventType = "phase_done"
	EventFileStart        EventType = "file_start"
	EventFileDone         EventType = "file_done"
	EventPageScored       EventType = "page_scored"
	EventEnhancementStart EventType = "enhancement_start"
	EventEnhancementDone  EventType = "enhancement_done"
	EventError            EventType = "error"
	EventRunDone          EventType = "run_done"
)

// Phase names carried on phase events.
const (
	PhaseBaseline    = "baseline"
	PhaseEnhancement = "enhancement"
	PhaseWriteback   = "writeback"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Phase     string      `json:"phase,omitempty"`
	File      string      `json:"file,omitempty"`
	Page      int         `json:"page"`
	Score     float64     `json:"score,omitempty"`
	Flagged   bool        `json:"flagged,omitempty"`
	State     FileState   `json:"state,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
