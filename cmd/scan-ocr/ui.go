package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/pkg/ocrpipe"
)

// ui renders pipeline events as a progress bar for the baseline phase and a
// spinner for the enhancement phase.
type ui struct {
	w       io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
	spin    *spinner.Spinner
}

func newUI(w io.Writer, enabled bool) *ui {
	return &ui{w: w, enabled: enabled}
}

func (u *ui) handle(e ocrpipe.StreamEvent) {
	switch e.Type {
	case ocrpipe.EventPhaseStart:
		u.phaseStart(e)
	case ocrpipe.EventPhaseDone:
		u.phaseDone(e.Phase)
	case ocrpipe.EventFileDone:
		if e.Phase == domain.PhaseBaseline && u.bar != nil {
			_ = u.bar.Add(1)
		}
	case ocrpipe.EventEnhancementStart:
		if u.spin != nil {
			pages, _ := e.Payload.([]int)
			u.spin.Lock()
			u.spin.Suffix = fmt.Sprintf(" enhancing %s (%d pages)", filepath.Base(e.File), len(pages))
			u.spin.Unlock()
		}
	}
}

func (u *ui) phaseStart(e ocrpipe.StreamEvent) {
	if !u.enabled {
		return
	}
	switch e.Phase {
	case domain.PhaseBaseline:
		total, ok := e.Payload.(int)
		if !ok || total == 0 {
			return
		}
		u.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("baseline OCR"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionSetWriter(u.w),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionOnCompletion(func() { fmt.Fprint(u.w, "\n") }),
			progressbar.OptionSetRenderBlankState(true),
		)
	case domain.PhaseEnhancement:
		u.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(u.w))
		u.spin.Suffix = " checking pages for enhancement"
		u.spin.Start()
	}
}

func (u *ui) phaseDone(phase string) {
	switch phase {
	case domain.PhaseBaseline:
		if u.bar != nil {
			_ = u.bar.Finish()
			u.bar = nil
		}
	case domain.PhaseEnhancement:
		if u.spin != nil {
			u.spin.Stop()
			u.spin = nil
		}
	}
}

// finish tears down any progress display left open.
func (u *ui) finish() {
	u.phaseDone(domain.PhaseBaseline)
	u.phaseDone(domain.PhaseEnhancement)
}

func printSummary(w io.Writer, r *ocrpipe.BatchResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Fprintln(w)
	if r.FilesProcessed == 0 {
		yellow.Fprintln(w, "⚠ no input PDFs found")
		return
	}

	cyan.Fprintln(w, "Summary")
	for _, f := range r.Files {
		name := filepath.Base(f.Path)
		switch {
		case f.Success:
			green.Fprintf(w, "✓ %s", name)
			fmt.Fprintf(w, "  %d pages, %s, %s\n", len(f.Pages), f.State, f.TextPath)
			for _, p := range f.Pages {
				if p.Error != "" && verbose {
					yellow.Fprintf(w, "    ⚠ page %d: %s\n", p.Index+1, p.Error)
				}
			}
		default:
			red.Fprintf(w, "✗ %s", name)
			fmt.Fprintf(w, "  %s\n", f.Error)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files:  %d/%d succeeded (%.0f%%)\n", r.FilesSucceeded, r.FilesProcessed, r.SuccessRate*100)
	fmt.Fprintf(w, "Pages:  %d processed, %d enhanced, %d improved\n", r.PagesProcessed, r.PagesEnhanced, r.PagesImproved)
	fmt.Fprintf(w, "Time:   %s\n", r.Duration.Round(time.Millisecond))

	if failed := r.FailedFiles(); len(failed) > 0 {
		fmt.Fprintln(w)
		red.Fprintf(w, "%d file(s) failed:\n", len(failed))
		for _, f := range failed {
			fmt.Fprintf(w, "  • %s: %s\n", f.Path, f.Error)
		}
	}
}
