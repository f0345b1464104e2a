package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Validator provides input validation for PDF files
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePDFPath checks that path names a readable, non-directory .pdf file.
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.SourceIOError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.SourceIOError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.SourceIOError(fmt.Sprintf("cannot access file: %s", path), err)
	}
	if info.IsDir() {
		return domain.SourceIOError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return domain.SourceIOError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.SourceIOError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// ValidateQuality validates JPEG quality
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}
