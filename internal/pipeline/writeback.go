package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
)

// pageSeparator separates pages in text output, as OCRmyPDF sidecars do.
const pageSeparator = "\f"

// MergeText joins the retained text of every page in page order.
func MergeText(pages []*domain.PageRecord) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text()
	}
	return strings.Join(texts, pageSeparator)
}

// OutputPaths returns the text and PDF paths written for input.
func OutputPaths(outputDir, input string) (text, pdf string) {
	stem := domain.Stem(input)
	return filepath.Join(outputDir, stem+".txt"), filepath.Join(outputDir, stem+".pdf")
}

// runWriteback writes the final artifacts of every file that has pages.
func (p *Pipeline) runWriteback(tasks []*domain.FileTask, workDir string, ev emitter) {
	for _, t := range tasks {
		if t.Err != nil || len(t.Pages) == 0 {
			continue
		}
		start := time.Now()
		err := p.writeFile(t, workDir)
		t.WritebackDuration = time.Since(start)
		if err != nil {
			t.Err = err
			p.logger.WithFile(t.Path).Error().Err(err).Msg("writeback failed")
			ev.error(t.Path, err)
			continue
		}
		p.logger.WithFile(t.Path).Debug().Str("text", t.TextPath).Str("pdf", t.PDFPath).Msg("outputs written")
	}
}

func (p *Pipeline) writeFile(t *domain.FileTask, workDir string) error {
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return domain.SourceIOError("failed to create output directory", err)
	}
	textPath, pdfPath := OutputPaths(p.cfg.OutputDir, t.Path)

	if err := os.WriteFile(textPath, []byte(MergeText(t.Pages)), 0o644); err != nil {
		return domain.SourceIOError("failed to write "+textPath, err)
	}
	t.TextPath = textPath

	if t.SearchablePDF == "" {
		return nil
	}
	dir := fileWorkDir(workDir, t)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.SourceIOError("failed to create work directory", err)
	}

	// Enhanced pages come from the engine's page PDF when it has one, else
	// from the source page with the enhanced text laid over it.
	replacements := make(map[int]domain.PageRef)
	layered := make(map[int]string)
	for _, page := range t.Pages {
		if page.Engine != domain.EngineEnhancement {
			continue
		}
		if page.EnhancedPage != nil {
			replacements[page.Index] = *page.EnhancedPage
			continue
		}
		layered[page.Index] = page.Text()
	}
	if len(layered) > 0 {
		overlay := filepath.Join(dir, domain.Stem(t.Path)+".enhanced.pdf")
		if err := p.compositor.TextLayer(t.Path, layered, overlay); err != nil {
			return asType(err, domain.ErrorTypeSourceIO, fmt.Sprintf("failed to lay enhanced text over %s", t.Path))
		}
		for i := range layered {
			replacements[i] = domain.PageRef{Path: overlay, Page: i + 1}
		}
	}

	if err := p.compositor.Splice(t.SearchablePDF, replacements, pdfPath, dir); err != nil {
		return asType(err, domain.ErrorTypeSourceIO, fmt.Sprintf("failed to write %s", pdfPath))
	}
	t.PDFPath = pdfPath
	return nil
}
