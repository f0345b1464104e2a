package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultQualityThreshold is the score below which a page is flagged for enhancement.
const DefaultQualityThreshold = 0.85

// PipelineConfig describes one pipeline run. The pipeline copies it on
// construction, so later changes by the caller have no effect.
type PipelineConfig struct {
	Inputs           []string
	OutputDir        string
	QualityThreshold float64
	ForceBaseline    bool
	ForceEnhancement bool
	Workers          int // 0 means use every available CPU
	Languages        []string

	// MinFlaggedPages is how many flagged pages a file needs before it is
	// sent to the enhancement engine. Ignored under ForceEnhancement.
	MinFlaggedPages int

	// WorkDir holds intermediate artifacts. Empty means a temporary
	// directory that is removed when the run ends.
	WorkDir string
}

// Clone returns a deep copy of the config.
func (c PipelineConfig) Clone() PipelineConfig {
	c.Inputs = append([]string(nil), c.Inputs...)
	c.Languages = append([]string(nil), c.Languages...)
	return c
}

// Validate checks the config and returns a ConfigError describing the first problem.
func (c PipelineConfig) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return ConfigError("output directory is required", nil)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return ConfigError(fmt.Sprintf("quality threshold must be between 0 and 1, got %v", c.QualityThreshold), nil)
	}
	if c.ForceBaseline && c.ForceEnhancement {
		return ConfigError("force-baseline and force-enhancement are mutually exclusive", nil)
	}
	if c.Workers < 0 {
		return ConfigError(fmt.Sprintf("worker count cannot be negative, got %d", c.Workers), nil)
	}
	if c.MinFlaggedPages < 1 {
		return ConfigError(fmt.Sprintf("min flagged pages must be at least 1, got %d", c.MinFlaggedPages), nil)
	}
	if len(c.Languages) == 0 {
		return ConfigError("at least one OCR language is required", nil)
	}
	seen := make(map[string]string, len(c.Inputs))
	for _, in := range c.Inputs {
		stem := Stem(in)
		if prev, ok := seen[stem]; ok {
			return ConfigError(fmt.Sprintf("inputs %s and %s would write the same output name %q", prev, in, stem), nil)
		}
		seen[stem] = in
	}
	return nil
}

// Stem returns the input file's base name without extension. Output
// artifacts are named from it.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Engine tags which engine produced the text retained for a page.
type Engine string

const (
	EngineBaseline    Engine = "baseline"
	EngineEnhancement Engine = "enhancement"
)

// PageRef points at a single page (1-based) of a PDF on disk.
type PageRef struct {
	Path string
	Page int
}

// PageRecord is the mutable per-page state carried through both phases.
type PageRecord struct {
	Index         int
	BaselineText  string
	BaselineScore float64
	Flagged       bool

	EnhancedText  *string
	EnhancedScore *float64
	// EnhancedPage is the engine's page-level PDF output for this page, if any.
	EnhancedPage *PageRef

	Engine Engine
	Err    error
}

// NewPageRecord creates a baseline-tagged page.
func NewPageRecord(index int, text string) *PageRecord {
	return &PageRecord{
		Index:        index,
		BaselineText: text,
		Engine:       EngineBaseline,
	}
}

// ApplyEnhancement retains enhanced text for the page. It is the only place
// the enhancement tag is set.
func (p *PageRecord) ApplyEnhancement(text string, score float64, artifact *PageRef) {
	p.EnhancedText = &text
	p.EnhancedScore = &score
	p.EnhancedPage = artifact
	p.Engine = EngineEnhancement
	p.Err = nil
}

// RejectEnhancement keeps the baseline text and records why.
func (p *PageRecord) RejectEnhancement(err error) {
	p.EnhancedText = nil
	p.EnhancedScore = nil
	p.EnhancedPage = nil
	p.Engine = EngineBaseline
	p.Err = err
}

// Text returns the text retained for the page.
func (p *PageRecord) Text() string {
	if p.Engine == EngineEnhancement && p.EnhancedText != nil {
		return *p.EnhancedText
	}
	return p.BaselineText
}

// FileState is a step in a file's lifecycle.
type FileState string

const (
	StatePending           FileState = "pending"
	StateScored            FileState = "scored"
	StateSkipped           FileState = "skipped"
	StateEnhancing         FileState = "enhancing"
	StateEnhanced          FileState = "enhanced"
	StatePartiallyEnhanced FileState = "partially_enhanced"
	StateEnhancementFailed FileState = "enhancement_failed"
	StateFinalized         FileState = "finalized"
	StateFailed            FileState = "failed"
)

var transitions = map[FileState][]FileState{
	StatePending:           {StateScored, StateFailed},
	StateScored:            {StateSkipped, StateEnhancing},
	StateEnhancing:         {StateEnhanced, StatePartiallyEnhanced, StateEnhancementFailed},
	StateSkipped:           {StateFinalized},
	StateEnhanced:          {StateFinalized},
	StatePartiallyEnhanced: {StateFinalized},
	StateEnhancementFailed: {StateFinalized},
	StateFailed:            {StateFinalized},
}

// CanTransition reports whether a file may move from one state to another.
func CanTransition(from, to FileState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// FileTask is one input file as it moves through the pipeline.
type FileTask struct {
	Path  string
	Order int // discovery order

	Pages []*PageRecord

	// SourcePages is the page count of the source document, or -1 if unknown.
	SourcePages   int
	SearchablePDF string

	BaselineDuration    time.Duration
	EnhancementDuration time.Duration
	WritebackDuration   time.Duration

	TextPath string
	PDFPath  string

	// Err is terminal: the file produced no usable output.
	Err error
	// EnhancementErr records a whole-file enhancement failure; baseline output is kept.
	EnhancementErr error

	state FileState
	// outcome is the enhancement outcome preserved across Finalized.
	outcome FileState
}

// NewFileTask creates a pending task for a discovered input.
func NewFileTask(path string, order int) *FileTask {
	return &FileTask{
		Path:        path,
		Order:       order,
		SourcePages: -1,
		state:       StatePending,
	}
}

// State returns the current lifecycle state.
func (t *FileTask) State() FileState {
	return t.state
}

// Outcome returns the last state before Finalized.
func (t *FileTask) Outcome() FileState {
	if t.state == StateFinalized {
		return t.outcome
	}
	return t.state
}

// Transition moves the task to the next state.
func (t *FileTask) Transition(to FileState) error {
	if !CanTransition(t.state, to) {
		return fmt.Errorf("illegal state transition %s -> %s for %s", t.state, to, t.Path)
	}
	if to == StateFinalized {
		t.outcome = t.state
	}
	t.state = to
	return nil
}

// Fail records a terminal error and drops any partial pages.
func (t *FileTask) Fail(err error) {
	t.Err = err
	t.Pages = nil
	if CanTransition(t.state, StateFailed) {
		t.state = StateFailed
	}
}

// Failed reports whether the file ended without usable output or with an
// enhancement failure.
func (t *FileTask) Failed() bool {
	return t.Err != nil || t.EnhancementErr != nil
}

// FlaggedIndices returns the indices of flagged pages in page order.
func (t *FileTask) FlaggedIndices() []int {
	var out []int
	for _, p := range t.Pages {
		if p.Flagged {
			out = append(out, p.Index)
		}
	}
	return out
}

// Page returns the record for a page index, or nil.
func (t *FileTask) Page(index int) *PageRecord {
	if index < 0 || index >= len(t.Pages) {
		return nil
	}
	if p := t.Pages[index]; p.Index == index {
		return p
	}
	for _, p := range t.Pages {
		if p.Index == index {
			return p
		}
	}
	return nil
}

// PageResult is the frozen form of a PageRecord.
type PageResult struct {
	Index         int      `json:"index"`
	Text          string   `json:"text"`
	Engine        Engine   `json:"engine"`
	Flagged       bool     `json:"flagged"`
	BaselineScore float64  `json:"baseline_score"`
	EnhancedScore *float64 `json:"enhanced_score,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Improved reports whether enhancement raised the page's score.
func (p PageResult) Improved() bool {
	return p.EnhancedScore != nil && *p.EnhancedScore > p.BaselineScore
}

// FileResult is the immutable snapshot of a finished FileTask.
type FileResult struct {
	Path                string        `json:"path"`
	Pages               []PageResult  `json:"pages"`
	State               FileState     `json:"state"`
	Success             bool          `json:"success"`
	Error               string        `json:"error,omitempty"`
	Err                 error         `json:"-"`
	TextPath            string        `json:"text_path,omitempty"`
	PDFPath             string        `json:"pdf_path,omitempty"`
	BaselineDuration    time.Duration `json:"baseline_duration"`
	EnhancementDuration time.Duration `json:"enhancement_duration"`
	WritebackDuration   time.Duration `json:"writeback_duration"`
}

// BatchResult is what a pipeline run returns.
type BatchResult struct {
	RunID          string        `json:"run_id"`
	Files          []FileResult  `json:"files"`
	FilesProcessed int           `json:"files_processed"`
	FilesSucceeded int           `json:"files_succeeded"`
	FilesFailed    int           `json:"files_failed"`
	PagesProcessed int           `json:"pages_processed"`
	PagesEnhanced  int           `json:"pages_enhanced"`
	PagesImproved  int           `json:"pages_improved"`
	SuccessRate    float64       `json:"success_rate"`
	Duration       time.Duration `json:"duration"`
}

// Failed reports whether the batch should be treated as a failure: any file
// failed, or there was nothing to process.
func (b *BatchResult) Failed() bool {
	return b.FilesProcessed == 0 || b.FilesFailed > 0
}

// FailedFiles returns the results of every failed file.
func (b *BatchResult) FailedFiles() []FileResult {
	var out []FileResult
	for _, f := range b.Files {
		if !f.Success {
			out = append(out, f)
		}
	}
	return out
}
