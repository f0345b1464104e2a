// Package ocrmypdf runs OCRmyPDF as the baseline engine. OCRmyPDF writes a
// searchable PDF with a Tesseract text layer; page text is then read back
// from that PDF so it lines up with the source pages.
package ocrmypdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/pdf"
)

const defaultBinary = "ocrmypdf"

// Exit codes documented by OCRmyPDF that point at the input document
// rather than the engine.
const (
	exitInputFile    = 2
	exitFileAccess   = 5
	exitEncryptedPDF = 8
)

// Engine invokes the ocrmypdf command.
type Engine struct {
	binary    string
	extraArgs []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithBinary overrides the ocrmypdf executable.
func WithBinary(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithArgs appends extra command-line arguments, e.g. "--deskew".
func WithArgs(args ...string) Option {
	return func(e *Engine) {
		e.extraArgs = append(e.extraArgs, args...)
	}
}

// New creates an OCRmyPDF engine.
func New(opts ...Option) *Engine {
	e := &Engine{binary: defaultBinary}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "ocrmypdf" }

// Run OCRs path into workDir/<stem>.ocr.pdf using at most jobs workers.
func (e *Engine) Run(ctx context.Context, path string, jobs int, languages []string, workDir string) (*domain.BaselineOutput, error) {
	out := filepath.Join(workDir, domain.Stem(path)+".ocr.pdf")

	cmd := exec.CommandContext(ctx, e.binary, e.args(path, out, jobs, languages)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, classify(err, path, stderr.String())
	}

	var texts []string
	err := pdf.WithDocument(out, func(d *pdf.Document) error {
		var err error
		texts, err = d.Texts()
		return err
	})
	if err != nil {
		return nil, domain.EngineInvocationError(fmt.Sprintf("ocrmypdf output for %s is unreadable", path), err)
	}
	return &domain.BaselineOutput{PageTexts: texts, SearchablePDF: out}, nil
}

func (e *Engine) args(in, out string, jobs int, languages []string) []string {
	args := []string{
		"--jobs", strconv.Itoa(max(1, jobs)),
		"--output-type", "pdf",
		"--skip-text",
		"--quiet",
	}
	if len(languages) > 0 {
		args = append(args, "-l", strings.Join(languages, "+"))
	}
	args = append(args, e.extraArgs...)
	return append(args, in, out)
}

func classify(err error, path, stderr string) error {
	msg := fmt.Sprintf("ocrmypdf failed on %s", path)
	if s := strings.TrimSpace(stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitInputFile, exitFileAccess, exitEncryptedPDF:
			return domain.SourceIOError(msg, err)
		}
	}
	return domain.EngineInvocationError(msg, err)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
