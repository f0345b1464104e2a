package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/pdf"
)

const (
	defaultDPI         = 200
	defaultJPEGQuality = 85
)

// Engine is the enhancement engine: a vision model that re-reads flagged pages.
type Engine struct {
	client  *Client
	dpi     float64
	quality int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDPI sets the page render resolution.
func WithDPI(dpi float64) Option {
	return func(e *Engine) {
		if dpi > 0 {
			e.dpi = dpi
		}
	}
}

// WithJPEGQuality sets the JPEG quality of rendered pages.
func WithJPEGQuality(q int) Option {
	return func(e *Engine) {
		if q > 0 {
			e.quality = q
		}
	}
}

// NewEngine creates an enhancement engine backed by client.
func NewEngine(client *Client, opts ...Option) *Engine {
	e := &Engine{client: client, dpi: defaultDPI, quality: defaultJPEGQuality}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "openrouter" }

// LoadModel checks that the model is reachable and prepares its prompt.
func (e *Engine) LoadModel(ctx context.Context, languages []string) (domain.Model, error) {
	if err := e.client.CheckModel(ctx); err != nil {
		return nil, err
	}
	return &Model{name: e.client.Model(), prompt: buildPrompt(languages)}, nil
}

// Enhance renders the requested pages of path and transcribes them in one request.
func (e *Engine) Enhance(ctx context.Context, path string, model domain.Model, pages []int) (domain.StructuredOutput, error) {
	m, ok := model.(*Model)
	if !ok || m == nil {
		return nil, domain.EngineInvocationError(fmt.Sprintf("model %T was not loaded by this engine", model), nil)
	}
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if len(pages) == 0 {
		return &Output{pages: map[int]string{}}, nil
	}

	images := make([][]byte, 0, len(pages))
	err = pdf.WithDocument(path, func(d *pdf.Document) error {
		for _, p := range pages {
			img, err := d.RenderJPEG(p, e.dpi, e.quality)
			if err != nil {
				return err
			}
			images = append(images, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reply, err := e.client.Complete(ctx, m.prompt+imageHeader(len(pages)), images)
	if errors.Is(err, ErrTruncated) {
		// The last segment may stop mid-page; its page keeps the baseline.
		return segment(dropLastSegment(reply), pages), nil
	}
	if err != nil {
		return nil, err
	}
	return segment(reply, pages), nil
}
