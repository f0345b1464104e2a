// Package tesseract is an in-process baseline engine built on gosseract.
// Pages are rendered with MuPDF and recognized by a small pool of Tesseract
// clients, one client per worker.
package tesseract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/pdf"
)

// recognizer is the subset of *gosseract.Client the engine drives.
type recognizer interface {
	SetImageFromBytes([]byte) error
	SetLanguage(...string) error
	Text() (string, error)
	Close() error
}

// Engine OCRs rendered pages with Tesseract.
type Engine struct {
	dpi           float64
	compositor    *pdf.Compositor
	clientFactory func() recognizer
}

// New creates a Tesseract engine rendering pages at dpi (0 means pdf.DefaultDPI).
func New(dpi float64) *Engine {
	if dpi <= 0 {
		dpi = pdf.DefaultDPI
	}
	return &Engine{
		dpi:           dpi,
		compositor:    pdf.NewCompositor(),
		clientFactory: func() recognizer { return gosseract.NewClient() },
	}
}

func (e *Engine) Name() string { return "tesseract" }

type pageJob struct {
	index int
	png   []byte
}

// Run recognizes every page of path with up to jobs Tesseract clients. The
// artifact is an optimized copy of the source; this engine adds no text layer.
func (e *Engine) Run(ctx context.Context, path string, jobs int, languages []string, workDir string) (*domain.BaselineOutput, error) {
	doc, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.PageCount()
	texts := make([]string, n)
	jobs = max(1, min(jobs, n))

	pageCh := make(chan pageJob)
	errCh := make(chan error, jobs)
	var wg sync.WaitGroup

	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := e.clientFactory()
			defer c.Close()
			for job := range pageCh {
				text, err := recognize(c, job.png, languages)
				if err != nil {
					errCh <- domain.EngineInvocationError(fmt.Sprintf("tesseract failed on %s page %d", path, job.index+1), err)
					return
				}
				texts[job.index] = text
			}
		}()
	}

	var renderErr error
produce:
	for i := 0; i < n; i++ {
		img, err := doc.RenderPNG(i, e.dpi)
		if err != nil {
			renderErr = err
			break
		}
		select {
		case pageCh <- pageJob{index: i, png: img}:
		case err := <-errCh:
			renderErr = err
			break produce
		case <-ctx.Done():
			renderErr = ctx.Err()
			break produce
		}
	}
	close(pageCh)
	// Drain so workers blocked on a failed peer can exit.
	go func() {
		wg.Wait()
		close(errCh)
	}()
	for err := range errCh {
		if renderErr == nil {
			renderErr = err
		}
	}
	if renderErr != nil {
		return nil, renderErr
	}

	layer := make(map[int]string, n)
	for i, text := range texts {
		layer[i] = text
	}
	out := filepath.Join(workDir, domain.Stem(path)+".base.pdf")
	if err := e.compositor.TextLayer(path, layer, out); err != nil {
		return nil, err
	}
	return &domain.BaselineOutput{PageTexts: texts, SearchablePDF: out}, nil
}

func recognize(c recognizer, img []byte, languages []string) (string, error) {
	if err := c.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
