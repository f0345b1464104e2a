// Package pipeline orchestrates two-engine OCR over a batch of scanned PDFs.
//
// Phase 1 runs the fast baseline engine over every file in parallel, sized by
// the resource planner so that pool workers times engine jobs never exceeds
// the CPU budget. Every page is scored by the quality analyzer. Phase 2 sends
// the files with flagged pages through the slow enhancement engine, one file
// at a time, sharing one loaded model. Writeback then merges both engines'
// output into one text file and one PDF per input.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
	"github.com/spherical/scan-ocr/internal/pdf"
	"github.com/spherical/scan-ocr/internal/planner"
	"github.com/spherical/scan-ocr/internal/quality"
)

// Analyzer scores page text and decides which pages need enhancement.
type Analyzer interface {
	domain.Scorer
	Flag(score float64) bool
}

// PageCounter reports the page count of a source document.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// Compositor writes an output PDF from a base document with some slots
// replaced by pages of other documents, and lays text over scanned pages.
type Compositor interface {
	Splice(base string, replacements map[int]domain.PageRef, out, workDir string) error
	TextLayer(in string, texts map[int]string, out string) error
}

// Pipeline runs one configured batch. Its configuration is fixed at New.
type Pipeline struct {
	cfg        domain.PipelineConfig
	baseline   domain.BaselineEngine
	enhancer   domain.EnhancementEngine
	analyzer   Analyzer
	counter    PageCounter
	compositor Compositor
	logger     *observability.Logger
	capacity   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *observability.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithAnalyzer replaces the default quality analyzer.
func WithAnalyzer(a Analyzer) Option {
	return func(p *Pipeline) { p.analyzer = a }
}

// WithPageCounter replaces the source page counter.
func WithPageCounter(c PageCounter) Option {
	return func(p *Pipeline) { p.counter = c }
}

// WithCompositor replaces the PDF compositor.
func WithCompositor(c Compositor) Option {
	return func(p *Pipeline) { p.compositor = c }
}

// WithCapacity overrides the detected CPU budget.
func WithCapacity(n int) Option {
	return func(p *Pipeline) { p.capacity = n }
}

// New validates cfg and builds a pipeline. cfg is copied; later changes by
// the caller have no effect.
func New(cfg domain.PipelineConfig, baseline domain.BaselineEngine, enhancer domain.EnhancementEngine, opts ...Option) (*Pipeline, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if baseline == nil {
		return nil, domain.ConfigError("a baseline engine is required", nil)
	}
	if enhancer == nil && !cfg.ForceBaseline {
		return nil, domain.ConfigError("an enhancement engine is required unless force-baseline is set", nil)
	}

	p := &Pipeline{
		cfg:        cfg,
		baseline:   baseline,
		enhancer:   enhancer,
		counter:    sourceCounter{},
		compositor: pdf.NewCompositor(),
		logger:     observability.Nop(),
		capacity:   planner.Capacity(cfg.Workers),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.analyzer == nil {
		p.analyzer = quality.New(cfg.QualityThreshold, cfg.ForceEnhancement)
	}
	return p, nil
}

// Config returns a copy of the run configuration.
func (p *Pipeline) Config() domain.PipelineConfig {
	return p.cfg.Clone()
}

// Run processes every input and returns the batch result. Per-file and
// per-page failures are recorded in the result; the returned error is
// non-nil only when the run could not start. Events are sent to eventCh
// without blocking; eventCh may be nil and is never closed by Run.
func (p *Pipeline) Run(ctx context.Context, eventCh chan<- domain.StreamEvent) (*domain.BatchResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.logger.WithRun(runID)
	ev := emitter{ch: eventCh, logger: log}

	plan, err := planner.New(p.capacity, len(p.cfg.Inputs))
	if err != nil {
		return nil, err
	}

	workDir, cleanup, err := p.workDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	tasks := make([]*domain.FileTask, len(p.cfg.Inputs))
	for i, in := range p.cfg.Inputs {
		tasks[i] = domain.NewFileTask(in, i)
	}
	log.Info().Int("files", len(tasks)).Str("plan", plan.String()).Msg("starting run")

	phase := func(name string, payload interface{}, fn func()) {
		ev.emit(domain.StreamEvent{Type: domain.EventPhaseStart, Phase: name, Payload: payload})
		phaseStart := time.Now()
		fn()
		log.Debug().Str("phase", name).Dur("duration", time.Since(phaseStart)).Msg("phase complete")
		ev.emit(domain.StreamEvent{Type: domain.EventPhaseDone, Phase: name})
	}

	p1 := p.withLogger(log.WithOperation(domain.PhaseBaseline))
	phase(domain.PhaseBaseline, len(tasks), func() { p1.runBaseline(ctx, tasks, plan, workDir, ev) })

	p2 := p.withLogger(log)
	phase(domain.PhaseEnhancement, nil, func() { p2.runEnhancement(ctx, tasks, ev) })

	p3 := p.withLogger(log.WithOperation(domain.PhaseWriteback))
	phase(domain.PhaseWriteback, nil, func() { p3.runWriteback(tasks, workDir, ev) })

	for _, t := range tasks {
		mustTransition(t, domain.StateFinalized)
		ev.emit(domain.StreamEvent{
			Type:  domain.EventFileDone,
			File:  t.Path,
			State: t.Outcome(),
		})
	}

	result := Aggregate(runID, tasks, time.Since(start))
	log.Info().
		Int("succeeded", result.FilesSucceeded).
		Int("failed", result.FilesFailed).
		Int("pages", result.PagesProcessed).
		Int("enhanced", result.PagesEnhanced).
		Dur("duration", result.Duration).
		Msg("run complete")
	ev.emit(domain.StreamEvent{Type: domain.EventRunDone, Payload: result})
	return result, nil
}

// withLogger returns a shallow copy of p logging through l.
func (p *Pipeline) withLogger(l *observability.Logger) *Pipeline {
	c := *p
	c.logger = l
	return &c
}

func (p *Pipeline) workDir() (string, func(), error) {
	if p.cfg.WorkDir != "" {
		if err := os.MkdirAll(p.cfg.WorkDir, 0o755); err != nil {
			return "", nil, domain.ConfigError("failed to create work directory", err)
		}
		return p.cfg.WorkDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "scan-ocr-*")
	if err != nil {
		return "", nil, domain.ConfigError("failed to create temporary work directory", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// sourceCounter counts source pages with MuPDF after validating the path.
type sourceCounter struct{}

func (sourceCounter) PageCount(path string) (int, error) {
	return pdf.PageCount(path)
}

// Discover expands inputs into a de-duplicated list of PDF paths, keeping
// the order given. Directories contribute the *.pdf files directly inside
// them, sorted by name; other paths are kept as given so that unreadable
// inputs surface as file failures.
func Discover(inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			add(in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, domain.SourceIOError("failed to read directory "+in, err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && isPDF(e.Name()) {
				found = append(found, filepath.Join(in, e.Name()))
			}
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
