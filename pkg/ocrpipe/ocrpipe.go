// Package ocrpipe is the public entry point for running the two-engine OCR
// pipeline over scanned PDFs.
package ocrpipe

import (
	"context"
	"io"
	"os"

	"github.com/spherical/scan-ocr/internal/config"
	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
	"github.com/spherical/scan-ocr/internal/pipeline"
)

// Re-export types for public API
type (
	Config            = config.Config
	StreamEvent       = domain.StreamEvent
	EventType         = domain.EventType
	BatchResult       = domain.BatchResult
	FileResult        = domain.FileResult
	PageResult        = domain.PageResult
	FileState         = domain.FileState
	BaselineEngine    = domain.BaselineEngine
	EnhancementEngine = domain.EnhancementEngine
)

// Event type constants
const (
	EventPhaseStart       = domain.EventPhaseStart
	EventPhaseDone        = domain.EventPhaseDone
	EventFileStart        = domain.EventFileStart
	EventFileDone         = domain.EventFileDone
	EventPageScored       = domain.EventPageScored
	EventEnhancementStart = domain.EventEnhancementStart
	EventEnhancementDone  = domain.EventEnhancementDone
	EventError            = domain.EventError
	EventRunDone          = domain.EventRunDone
)

const eventBuffer = 256

// Client runs batches with one loaded configuration.
type Client struct {
	cfg         *config.Config
	baseline    domain.BaselineEngine
	enhancer    domain.EnhancementEngine
	logger      *observability.Logger
	pipelineOpt []pipeline.Option
}

// Option configures a Client.
type Option func(*Client)

// WithLogOutput sends structured logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(c *Client) { c.logger = c.cfg.Logger(w) }
}

// WithBaselineEngine replaces the configured baseline engine.
func WithBaselineEngine(e BaselineEngine) Option {
	return func(c *Client) { c.baseline = e }
}

// WithEnhancementEngine replaces the configured enhancement engine.
func WithEnhancementEngine(e EnhancementEngine) Option {
	return func(c *Client) { c.enhancer = e }
}

// NewClient loads .env, the optional YAML file at configPath and the
// environment, then builds a client.
func NewClient(configPath string, opts ...Option) (*Client, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(cfg, opts...)
}

// NewClientWithConfig builds a client from an already loaded configuration.
func NewClientWithConfig(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, domain.ConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}
	c.logger = cfg.Logger(os.Stderr)
	for _, opt := range opts {
		opt(c)
	}

	if c.baseline == nil {
		c.baseline = cfg.BaselineEngine()
	}
	if c.enhancer == nil && !cfg.Pipeline.ForceBaseline {
		c.enhancer = cfg.EnhancementEngine(c.logger)
	}
	analyzer, err := cfg.Analyzer()
	if err != nil {
		return nil, err
	}
	c.pipelineOpt = []pipeline.Option{
		pipeline.WithAnalyzer(analyzer),
		pipeline.WithLogger(c.logger),
	}
	return c, nil
}

// Job is a batch running in the background.
type Job struct {
	events chan StreamEvent
	done   chan struct{}
	result *BatchResult
	err    error
}

// Events streams progress. The channel closes when the run ends. Events are
// dropped, never queued, when the reader falls behind.
func (j *Job) Events() <-chan StreamEvent { return j.events }

// Wait blocks until the run ends and returns its result.
func (j *Job) Wait() (*BatchResult, error) {
	<-j.done
	return j.result, j.err
}

// Process starts a batch over inputs (files or directories of PDFs). A
// ConfigError is returned before any work starts.
func (c *Client) Process(ctx context.Context, inputs []string) (*Job, error) {
	p, err := c.pipeline(inputs)
	if err != nil {
		return nil, err
	}

	job := &Job{
		events: make(chan StreamEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(job.done)
		defer close(job.events)
		job.result, job.err = p.Run(ctx, job.events)
	}()
	return job, nil
}

// Run processes inputs synchronously without progress events.
func (c *Client) Run(ctx context.Context, inputs []string) (*BatchResult, error) {
	p, err := c.pipeline(inputs)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, nil)
}

func (c *Client) pipeline(inputs []string) (*pipeline.Pipeline, error) {
	files, err := pipeline.Discover(inputs)
	if err != nil {
		return nil, err
	}
	return pipeline.New(c.cfg.Domain(files), c.baseline, c.enhancer, c.pipelineOpt...)
}
