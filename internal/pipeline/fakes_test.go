package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
)

// fakeAnalyzer scores any text containing "garbled" at 0.2, everything else at 1.0.
type fakeAnalyzer struct {
	threshold float64
	force     bool
}

func (a fakeAnalyzer) Score(text string) float64 {
	if strings.Contains(text, "garbled") {
		return 0.2
	}
	return 1.0
}

func (a fakeAnalyzer) Flag(score float64) bool { return a.force || score < a.threshold }

type fakeCounter struct {
	pages map[string]int
}

func (c fakeCounter) PageCount(path string) (int, error) {
	n, ok := c.pages[path]
	if !ok {
		return 0, domain.SourceIOError("cannot open "+path, errors.New("corrupt xref"))
	}
	return n, nil
}

type fakeBaseline struct {
	texts    map[string][]string
	panicOn  string
	artifact bool
	delay    time.Duration

	mu        sync.Mutex
	active    int
	maxActive int
	jobs      []int
	calls     atomic.Int32
}

func (b *fakeBaseline) Name() string { return "fake-baseline" }

func (b *fakeBaseline) Run(ctx context.Context, path string, jobs int, languages []string, workDir string) (*domain.BaselineOutput, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.active++
	b.maxActive = max(b.maxActive, b.active)
	b.jobs = append(b.jobs, jobs)
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.active--
		b.mu.Unlock()
	}()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if path == b.panicOn {
		panic("segfault in engine")
	}
	texts, ok := b.texts[path]
	if !ok {
		return nil, errors.New("engine crashed")
	}
	out := &domain.BaselineOutput{PageTexts: append([]string(nil), texts...)}
	if b.artifact {
		out.SearchablePDF = workDir + "/baseline.pdf"
	}
	return out, nil
}

type fakeOutput struct {
	texts map[int]string
	pdfs  map[int]*domain.PageRef
}

func (o fakeOutput) PageText(i int) (string, bool) {
	t, ok := o.texts[i]
	return t, ok
}

func (o fakeOutput) PagePDF(i int) (*domain.PageRef, bool) {
	r, ok := o.pdfs[i]
	return r, ok
}

type fakeModel struct {
	closed atomic.Bool
}

func (m *fakeModel) Name() string { return "fake-model" }
func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

type enhanceCall struct {
	path  string
	pages []int
}

type fakeEnhancer struct {
	loadErr error
	// fail maps a path to the error its Enhance call returns.
	fail map[string]error
	// drop maps a path to page indices left out of the output.
	drop map[string][]int
	// pagePDF makes the output carry a page-level PDF for each page.
	pagePDF bool
	delay   time.Duration

	loads     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	model     *fakeModel

	mu    sync.Mutex
	calls []enhanceCall
}

func (e *fakeEnhancer) Name() string { return "fake-enhancer" }

func (e *fakeEnhancer) LoadModel(ctx context.Context, languages []string) (domain.Model, error) {
	e.loads.Add(1)
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	e.model = &fakeModel{}
	return e.model, nil
}

func (e *fakeEnhancer) Enhance(ctx context.Context, path string, model domain.Model, pages []int) (domain.StructuredOutput, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if model != domain.Model(e.model) || e.model.closed.Load() {
		return nil, errors.New("stale model handle")
	}

	e.mu.Lock()
	e.calls = append(e.calls, enhanceCall{path: path, pages: append([]int(nil), pages...)})
	e.mu.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if err := e.fail[path]; err != nil {
		return nil, err
	}
	dropped := map[int]bool{}
	for _, i := range e.drop[path] {
		dropped[i] = true
	}
	out := fakeOutput{texts: map[int]string{}, pdfs: map[int]*domain.PageRef{}}
	for _, i := range pages {
		if dropped[i] {
			continue
		}
		out.texts[i] = fmt.Sprintf("clean page %d", i)
		if e.pagePDF {
			out.pdfs[i] = &domain.PageRef{Path: path + ".enhanced.pdf", Page: i + 1}
		}
	}
	return out, nil
}

func (e *fakeEnhancer) Calls() []enhanceCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]enhanceCall(nil), e.calls...)
}

type spliceCall struct {
	base         string
	replacements map[int]domain.PageRef
	out          string
}

type layerCall struct {
	in    string
	texts map[int]string
	out   string
}

type fakeCompositor struct {
	err      error
	layerErr error
	mu       sync.Mutex
	calls    []spliceCall
	layers   []layerCall
}

func (c *fakeCompositor) TextLayer(in string, texts map[int]string, out string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers = append(c.layers, layerCall{in: in, texts: texts, out: out})
	return c.layerErr
}

func (c *fakeCompositor) Splice(base string, replacements map[int]domain.PageRef, out, workDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, spliceCall{base: base, replacements: replacements, out: out})
	return c.err
}
