package pdf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Compositor assembles output PDFs from pages of other PDFs using pdfcpu.
type Compositor struct {
	conf *model.Configuration
}

// NewCompositor creates a compositor with pdfcpu's default configuration.
func NewCompositor() *Compositor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Compositor{conf: conf}
}

// PageCount counts the pages of a PDF without rendering it.
func (c *Compositor) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, domain.SourceIOError(fmt.Sprintf("failed to count pages of %s", path), err)
	}
	return n, nil
}

// textLayerStyle draws text behind the page content, fitted to the page
// width and fully transparent, so it is found by search and extraction but
// never seen.
const textLayerStyle = "fontname:Helvetica, points:10, scalefactor:1 rel, rotation:0, position:tl, opacity:0"

// TextLayer writes out as a copy of in where each 0-based page in texts
// carries that text as an invisible layer. Pages without text are copied
// unchanged. Helvetica covers Latin-1 only; other runes become spaces in
// the layer.
func (c *Compositor) TextLayer(in string, texts map[int]string, out string) error {
	total, err := c.PageCount(in)
	if err != nil {
		return err
	}

	marks := make(map[int]*model.Watermark, len(texts))
	for i, text := range texts {
		if i < 0 || i >= total {
			return domain.ExtractionError(fmt.Sprintf("text layer page %d outside %d-page document", i, total), nil)
		}
		text = layerText(text)
		if text == "" {
			continue
		}
		wm, err := api.TextWatermark(text, textLayerStyle, false, false, types.POINTS)
		if err != nil {
			return domain.SourceIOError(fmt.Sprintf("failed to prepare text layer for page %d", i+1), err)
		}
		marks[i+1] = wm
	}
	if len(marks) == 0 {
		return copyFile(in, out)
	}

	if err := api.AddWatermarksMapFile(in, out, marks, c.conf); err != nil {
		return domain.SourceIOError(fmt.Sprintf("failed to write text layer to %s", out), err)
	}
	return nil
}

// layerText normalizes line breaks and escapes pdfcpu's %p, %P, %t and %v
// placeholders.
func layerText(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		b.WriteString("%%")
		if i+1 < len(s) && strings.IndexByte("pPtv", s[i+1]) >= 0 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Splice writes out as a copy of base in which the 0-based slots in
// replacements are taken from other documents. Every source document,
// base included, is read once regardless of how many pages it contributes.
func (c *Compositor) Splice(base string, replacements map[int]domain.PageRef, out, workDir string) error {
	total, err := c.PageCount(base)
	if err != nil {
		return err
	}
	if len(replacements) == 0 {
		return copyFile(base, out)
	}

	slots := make([]domain.PageRef, total)
	for i := range slots {
		slots[i] = domain.PageRef{Path: base, Page: i + 1}
		if ref, ok := replacements[i]; ok {
			slots[i] = ref
		}
	}
	for i := range replacements {
		if i < 0 || i >= total {
			return domain.ExtractionError(fmt.Sprintf("replacement slot %d outside %d-page document", i, total), nil)
		}
	}

	groups := groupBySource(slots)

	tmp, err := os.MkdirTemp(workDir, "splice-*")
	if err != nil {
		return domain.SourceIOError("failed to create splice directory", err)
	}
	defer os.RemoveAll(tmp)

	parts := make([]string, len(groups))
	offset := make(map[domain.PageRef]int, total)
	next := 1
	for gi, g := range groups {
		parts[gi] = filepath.Join(tmp, fmt.Sprintf("part-%03d.pdf", gi))
		if err := api.CollectFile(g.path, parts[gi], pageSelection(g.pages), c.conf); err != nil {
			return domain.SourceIOError(fmt.Sprintf("failed to collect pages from %s", g.path), err)
		}
		for _, p := range g.pages {
			offset[domain.PageRef{Path: g.path, Page: p}] = next
			next++
		}
	}

	merged := parts[0]
	if len(parts) > 1 {
		merged = filepath.Join(tmp, "merged.pdf")
		if err := api.MergeCreateFile(parts, merged, false, c.conf); err != nil {
			return domain.SourceIOError("failed to merge collected pages", err)
		}
	}

	order := make([]int, total)
	for i, ref := range slots {
		order[i] = offset[ref]
	}
	if err := api.CollectFile(merged, out, pageSelection(order), c.conf); err != nil {
		return domain.SourceIOError(fmt.Sprintf("failed to write %s", out), err)
	}

	got, err := c.PageCount(out)
	if err != nil {
		return err
	}
	if got != total {
		return domain.SourceIOError(fmt.Sprintf("spliced %s has %d pages, want %d", out, got, total), nil)
	}
	return nil
}

type sourceGroup struct {
	path  string
	pages []int
}

// groupBySource lists the distinct pages needed from each document, in
// first-use order.
func groupBySource(slots []domain.PageRef) []sourceGroup {
	var groups []sourceGroup
	index := make(map[string]int)
	seen := make(map[domain.PageRef]bool)
	for _, ref := range slots {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		gi, ok := index[ref.Path]
		if !ok {
			gi = len(groups)
			index[ref.Path] = gi
			groups = append(groups, sourceGroup{path: ref.Path})
		}
		groups[gi].pages = append(groups[gi].pages, ref.Page)
	}
	return groups
}

func pageSelection(pages []int) []string {
	sel := make([]string, len(pages))
	for i, p := range pages {
		sel[i] = strconv.Itoa(p)
	}
	return sel
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return domain.SourceIOError(fmt.Sprintf("failed to open %s", src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return domain.SourceIOError(fmt.Sprintf("failed to create %s", dst), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return domain.SourceIOError(fmt.Sprintf("failed to copy %s", src), err)
	}
	if err := out.Close(); err != nil {
		return domain.SourceIOError(fmt.Sprintf("failed to close %s", dst), err)
	}
	return nil
}
