package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/scan-ocr/internal/domain"
)

// DefaultDPI is the resolution pages are rendered at for OCR.
const DefaultDPI = 300

// Document is an open PDF backed by MuPDF.
type Document struct {
	path string
	doc  *fitz.Document
}

// Open opens a PDF after validating its path. Callers must Close it; prefer
// WithDocument.
func Open(path string) (*Document, error) {
	if err := NewValidator().ValidatePDFPath(path); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.SourceIOError(fmt.Sprintf("failed to open PDF %s", path), err)
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, domain.SourceIOError(fmt.Sprintf("PDF has no pages: %s", path), nil)
	}
	return &Document{path: path, doc: doc}, nil
}

// WithDocument opens path, runs fn and always closes the document, even when
// fn fails or panics.
func WithDocument(path string, fn func(*Document) error) error {
	d, err := Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

// PageCount opens path just long enough to count its pages.
func PageCount(path string) (int, error) {
	var n int
	err := WithDocument(path, func(d *Document) error {
		n = d.PageCount()
		return nil
	})
	return n, err
}

// Path returns the file the document was opened from.
func (d *Document) Path() string {
	return d.path
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.doc.NumPage()
}

// PageText extracts the text layer of a 0-based page.
func (d *Document) PageText(index int) (string, error) {
	if err := d.checkIndex(index); err != nil {
		return "", err
	}
	text, err := d.doc.Text(index)
	if err != nil {
		return "", domain.SourceIOError(fmt.Sprintf("failed to extract text from page %d", index+1), err)
	}
	return text, nil
}

// Texts extracts the text layer of every page in order.
func (d *Document) Texts() ([]string, error) {
	texts := make([]string, d.PageCount())
	for i := range texts {
		text, err := d.PageText(i)
		if err != nil {
			return nil, err
		}
		texts[i] = text
	}
	return texts, nil
}

// Render rasterizes a 0-based page at the given DPI.
func (d *Document) Render(index int, dpi float64) (image.Image, error) {
	if err := d.checkIndex(index); err != nil {
		return nil, err
	}
	img, err := d.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, domain.SourceIOError(fmt.Sprintf("failed to render page %d", index+1), err)
	}
	return img, nil
}

// RenderJPEG rasterizes a page and encodes it as JPEG.
func (d *Document) RenderJPEG(index int, dpi float64, quality int) ([]byte, error) {
	if err := NewValidator().ValidateQuality(quality); err != nil {
		return nil, err
	}
	img, err := d.Render(index, dpi)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, domain.SourceIOError(fmt.Sprintf("failed to encode page %d as JPEG", index+1), err)
	}
	return buf.Bytes(), nil
}

// RenderPNG rasterizes a page and encodes it as PNG.
func (d *Document) RenderPNG(index int, dpi float64) ([]byte, error) {
	img, err := d.Render(index, dpi)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.SourceIOError(fmt.Sprintf("failed to encode page %d as PNG", index+1), err)
	}
	return buf.Bytes(), nil
}

// Close releases the MuPDF document.
func (d *Document) Close() error {
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}

func (d *Document) checkIndex(index int) error {
	if index < 0 || index >= d.PageCount() {
		return domain.ExtractionError(fmt.Sprintf("page index %d out of range [0,%d)", index, d.PageCount()), nil)
	}
	return nil
}
