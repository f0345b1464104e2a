package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/pdf/pdftest"
)

type otherModel struct{}

func (otherModel) Name() string { return "other" }
func (otherModel) Close() error { return nil }

func TestSegment(t *testing.T) {
	reply := "preamble\n=== IMAGE 1 ===\nsecond page\ntext\n\n=== IMAGE 2 ===\n  fifth  \n=== IMAGE 9 ===\nnot asked\n=== IMAGE 1 ===\nduplicate\n"
	out := segment(reply, []int{1, 4, 6})

	text, ok := out.PageText(1)
	assert.True(t, ok)
	assert.Equal(t, "second page\ntext", text)

	text, ok = out.PageText(4)
	assert.True(t, ok)
	assert.Equal(t, "fifth", text)

	_, ok = out.PageText(6)
	assert.False(t, ok, "missing marker yields no segment")
	_, ok = out.PageText(8)
	assert.False(t, ok, "markers past the last image are dropped")
	assert.Equal(t, 2, out.Pages())

	_, ok = out.PagePDF(1)
	assert.False(t, ok)
}

func TestSegmentMapsImagePositionToPage(t *testing.T) {
	reply := "=== IMAGE 1 ===\ntext of page two\n=== IMAGE 2 ===\ntext of page three\n"
	out := segment(reply, []int{1, 2})

	text, ok := out.PageText(1)
	assert.True(t, ok)
	assert.Equal(t, "text of page two", text)

	text, ok = out.PageText(2)
	assert.True(t, ok)
	assert.Equal(t, "text of page three", text)

	_, ok = out.PageText(0)
	assert.False(t, ok)
}

func TestSegmentIgnoresSourcePageNumbers(t *testing.T) {
	// Source pages 5 and 8 sent as images 1 and 2: a reply keyed by the
	// printed page numbers must not land on any page.
	out := segment("=== IMAGE 5 ===\nfive\n=== IMAGE 8 ===\neight\n", []int{4, 7})
	assert.Zero(t, out.Pages())

	out = segment("=== PAGE 1 ===\nwrong marker\n", []int{0})
	assert.Zero(t, out.Pages())
}

func TestBuildPromptNamesLanguages(t *testing.T) {
	p := buildPrompt([]string{"eng", "grc", "xyz"})
	assert.Contains(t, p, "English, Ancient Greek, xyz")
	assert.Contains(t, p, "=== IMAGE 1 ===")
	assert.Equal(t, "\nOne image is attached. Use the marker === IMAGE 1 ===.\n", imageHeader(1))
	assert.Equal(t, "\n3 images are attached. Use the markers === IMAGE 1 === to === IMAGE 3 ===, in order.\n", imageHeader(3))
}

func TestModelExclusiveUse(t *testing.T) {
	m := &Model{name: "m"}
	release, err := m.acquire()
	require.NoError(t, err)

	_, err = m.acquire()
	assert.True(t, domain.IsType(err, domain.ErrorTypeEngineInvocation))

	release()
	release, err = m.acquire()
	require.NoError(t, err)
	release()

	require.NoError(t, m.Close())
	_, err = m.acquire()
	assert.True(t, domain.IsType(err, domain.ErrorTypeEngineInvocation))
}

func TestEngineEnhance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/models", modelsHandler("vision/model"))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		parts := req.Messages[0].Content
		require.Len(t, parts, 3, "prompt plus one image per requested page")
		assert.Contains(t, parts[0].Text, "German")
		assert.Contains(t, parts[0].Text, "2 images are attached")
		sse(w, "=== IMAGE 1 ===\nDas Sein des Daseins\n", "=== IMAGE 2 ===\nist die Sorge")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := pdftest.Write(t, filepath.Join(t.TempDir(), "heidegger.pdf"), "garbled", "fine", "garbled")
	eng := NewEngine(NewClient("key", "vision/model", WithBaseURL(srv.URL), WithRetry(fastRetry())), WithDPI(50))
	assert.Equal(t, "openrouter", eng.Name())

	ctx := context.Background()
	model, err := eng.LoadModel(ctx, []string{"deu"})
	require.NoError(t, err)
	defer model.Close()
	assert.Equal(t, "vision/model", model.Name())

	out, err := eng.Enhance(ctx, src, model, []int{0, 2})
	require.NoError(t, err)
	text, ok := out.PageText(0)
	assert.True(t, ok)
	assert.Equal(t, "Das Sein des Daseins", text)
	text, ok = out.PageText(2)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(text, "ist die"))
	_, ok = out.PageText(1)
	assert.False(t, ok)
}

func TestEngineEnhanceDropsTruncatedPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/models", modelsHandler("vision/model"))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(Response{Choices: []Choice{{
			Delta:        Delta{Content: "=== IMAGE 1 ===\ncomplete page\n=== IMAGE 2 ===\nhalf a sen"},
			FinishReason: "length",
		}}})
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", b)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := pdftest.Write(t, filepath.Join(t.TempDir(), "long.pdf"), "a", "b")
	eng := NewEngine(NewClient("key", "vision/model", WithBaseURL(srv.URL), WithRetry(fastRetry())), WithDPI(50))
	model, err := eng.LoadModel(context.Background(), []string{"eng"})
	require.NoError(t, err)
	defer model.Close()

	out, err := eng.Enhance(context.Background(), src, model, []int{0, 1})
	require.NoError(t, err)
	text, ok := out.PageText(0)
	assert.True(t, ok)
	assert.Equal(t, "complete page", text)
	_, ok = out.PageText(1)
	assert.False(t, ok, "the page cut off at the token limit keeps its baseline text")
}

func TestDropLastSegment(t *testing.T) {
	assert.Equal(t, "=== IMAGE 1 ===\none\n", dropLastSegment("=== IMAGE 1 ===\none\n=== IMAGE 2 ===\ntw"))
	assert.Empty(t, dropLastSegment("no markers at all"))
}

func TestEngineLoadModelFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/models", modelsHandler("something/else"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	eng := NewEngine(NewClient("key", "vision/model", WithBaseURL(srv.URL)))
	_, err := eng.LoadModel(context.Background(), []string{"eng"})
	assert.True(t, domain.IsType(err, domain.ErrorTypeEngineInvocation))
}

func TestEngineEnhanceRejectsForeignModel(t *testing.T) {
	eng := NewEngine(NewClient("key", "m"))
	_, err := eng.Enhance(context.Background(), "x.pdf", otherModel{}, []int{0})
	assert.True(t, domain.IsType(err, domain.ErrorTypeEngineInvocation))
}

func TestEngineEnhanceBadPage(t *testing.T) {
	src := pdftest.Write(t, filepath.Join(t.TempDir(), "one.pdf"), "only page")
	eng := NewEngine(NewClient("key", "m"), WithDPI(50))
	model := &Model{name: "m"}

	_, err := eng.Enhance(context.Background(), src, model, []int{3})
	assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction))

	// The handle is released after a failed call.
	release, err := model.acquire()
	require.NoError(t, err)
	release()
}
