package pipeline

import (
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// emitter delivers progress events without ever blocking the pipeline. A
// nil channel disables events; a full channel drops them.
type emitter struct {
	ch     chan<- domain.StreamEvent
	logger *observability.Logger
}

func (e emitter) emit(event domain.StreamEvent) {
	if e.ch == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case e.ch <- event:
	default:
		e.logger.Warn().Str("event", string(event.Type)).Msg("event channel full, dropping event")
	}
}

func (e emitter) error(file string, err error) {
	e.emit(domain.StreamEvent{
		Type:    domain.EventError,
		File:    file,
		Payload: err.Error(),
	})
}
