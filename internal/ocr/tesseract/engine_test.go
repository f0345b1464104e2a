package tesseract

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/pdf"
	"github.com/spherical/scan-ocr/internal/pdf/pdftest"
)

type fakeClient struct {
	langs []string
	img   []byte
	fail  bool
}

func (f *fakeClient) SetImageFromBytes(b []byte) error { f.img = b; return nil }
func (f *fakeClient) SetLanguage(l ...string) error    { f.langs = l; return nil }
func (f *fakeClient) Close() error                     { return nil }

func (f *fakeClient) Text() (string, error) {
	if f.fail {
		return "", errors.New("tesseract crashed")
	}
	if !strings.HasPrefix(string(f.img), "\x89PNG") {
		return "", errors.New("not a png")
	}
	return "  recognized " + strings.Join(f.langs, "+") + "\n", nil
}

func fakeEngine(fail bool) (*Engine, *int) {
	var mu sync.Mutex
	created := 0
	e := New(36)
	e.clientFactory = func() recognizer {
		mu.Lock()
		created++
		mu.Unlock()
		return &fakeClient{fail: fail}
	}
	return e, &created
}

func TestRunRecognizesEveryPage(t *testing.T) {
	src := pdftest.Write(t, filepath.Join(t.TempDir(), "book.pdf"), "one", "two", "three")
	work := t.TempDir()
	e, created := fakeEngine(false)

	out, err := e.Run(context.Background(), src, 2, []string{"eng", "lat"}, work)
	require.NoError(t, err)
	assert.Equal(t, []string{"recognized eng+lat", "recognized eng+lat", "recognized eng+lat"}, out.PageTexts)
	assert.Equal(t, 2, *created)

	n, err := pdf.PageCount(out.SearchablePDF)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunArtifactIsSearchable(t *testing.T) {
	// Pages without a text layer, as in a scan.
	src := pdftest.Write(t, filepath.Join(t.TempDir(), "scan.pdf"), "", "")
	e, _ := fakeEngine(false)

	out, err := e.Run(context.Background(), src, 1, []string{"deu"}, t.TempDir())
	require.NoError(t, err)

	var texts []string
	require.NoError(t, pdf.WithDocument(out.SearchablePDF, func(d *pdf.Document) error {
		var err error
		texts, err = d.Texts()
		return err
	}))
	require.Len(t, texts, 2)
	for _, text := range texts {
		assert.Equal(t, "recognized deu", strings.TrimSpace(text))
	}
}

func TestRunCapsClientsAtPageCount(t *testing.T) {
	src := pdftest.Write(t, filepath.Join(t.TempDir(), "short.pdf"), "only")
	e, created := fakeEngine(false)

	_, err := e.Run(context.Background(), src, 8, []string{"eng"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, *created)
}

func TestRunReportsEngineFailure(t *testing.T) {
	src := pdftest.Write(t, filepath.Join(t.TempDir(), "book.pdf"), "one", "two", "three", "four")
	e, _ := fakeEngine(true)

	_, err := e.Run(context.Background(), src, 2, []string{"eng"}, t.TempDir())
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeEngineInvocation))
}

func TestRunRejectsUnreadableSource(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o644))
	e, _ := fakeEngine(false)

	_, err := e.Run(context.Background(), bad, 1, nil, t.TempDir())
	assert.True(t, domain.IsType(err, domain.ErrorTypeSourceIO))
}

func TestRunWithTesseract(t *testing.T) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed")
	}
	src := pdftest.Write(t, filepath.Join(t.TempDir(), "real.pdf"), "HELLO WORLD")

	out, err := New(150).Run(context.Background(), src, 1, []string{"eng"}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, out.PageTexts, 1)
	assert.Contains(t, strings.ToUpper(out.PageTexts[0]), "HELLO")
}
