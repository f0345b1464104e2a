// Package main provides the scan-ocr CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spherical/scan-ocr/internal/config"
	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/pkg/ocrpipe"
)

const version = "0.3.0"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

var (
	cfgFile          string
	outputDir        string
	workDir          string
	threshold        float64
	workers          int
	languages        string
	engine           string
	minFlagged       int
	forceBaseline    bool
	forceEnhancement bool
	outputJSON       bool
	noColor          bool
	verbose          bool
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "scan-ocr [flags] <pdf-or-dir>...",
	Short: "OCR scanned academic PDFs with a fast engine and a model-based second pass",
	Long: `scan-ocr converts scanned PDFs into searchable text.

Every page is first OCR'd by a fast baseline engine (OCRmyPDF or Tesseract)
running in parallel. Pages whose text looks garbled are then re-read by a
vision model, one file at a time. For each input a <name>.txt (pages
separated by form feeds) and a searchable <name>.pdf are written.

Exit status is 0 when every file succeeded, 1 when any file failed or no
input was found, and 2 on configuration errors.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file path (default: defaults plus env vars)")
	f.StringVarP(&outputDir, "output", "o", "", "output directory")
	f.StringVar(&workDir, "work-dir", "", "keep intermediate artifacts in this directory")
	f.Float64VarP(&threshold, "threshold", "t", domain.DefaultQualityThreshold, "quality score below which a page is enhanced (0-1)")
	f.IntVarP(&workers, "workers", "j", 0, "CPU budget for baseline OCR (0 = all CPUs)")
	f.StringVarP(&languages, "languages", "l", "", "OCR languages, e.g. eng+deu+grc")
	f.StringVar(&engine, "engine", "", "baseline engine: ocrmypdf or tesseract")
	f.IntVar(&minFlagged, "min-flagged", 1, "flagged pages a file needs before it is enhanced")
	f.BoolVar(&forceBaseline, "force-baseline", false, "never run the enhancement engine")
	f.BoolVar(&forceEnhancement, "force-enhancement", false, "enhance every page regardless of score")
	f.BoolVar(&outputJSON, "json", false, "print the batch result as JSON on stdout")
	f.BoolVar(&noColor, "no-color", false, "disable colored output")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// flagOverrides applies the flags the user actually set.
func flagOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		f := cmd.Flags()
		if f.Changed("output") {
			c.Pipeline.OutputDir = outputDir
		}
		if f.Changed("work-dir") {
			c.Pipeline.WorkDir = workDir
		}
		if f.Changed("threshold") {
			c.Pipeline.QualityThreshold = threshold
		}
		if f.Changed("workers") {
			c.Pipeline.Workers = workers
		}
		if f.Changed("languages") {
			c.Pipeline.Languages = config.ParseLanguages(languages)
		}
		if f.Changed("engine") {
			c.Baseline.Engine = engine
		}
		if f.Changed("min-flagged") {
			c.Pipeline.MinFlaggedPages = minFlagged
		}
		if f.Changed("force-baseline") {
			c.Pipeline.ForceBaseline = forceBaseline
		}
		if f.Changed("force-enhancement") {
			c.Pipeline.ForceEnhancement = forceEnhancement
		}
		if verbose {
			c.Observability.LogLevel = "debug"
		}
		if outputJSON {
			c.Observability.LogFormat = "json"
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile, flagOverrides(cmd))
	if err != nil {
		return err
	}

	client, err := ocrpipe.NewClientWithConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := client.Process(ctx, args)
	if err != nil {
		return err
	}

	ui := newUI(cmd.ErrOrStderr(), !outputJSON)
	for event := range job.Events() {
		ui.handle(event)
	}
	ui.finish()

	result, err := job.Wait()
	if err != nil {
		return err
	}

	if outputJSON {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), result)
	}

	if result.Failed() {
		return &exitError{code: exitFailure}
	}
	return nil
}

func writeJSON(w io.Writer, result *ocrpipe.BatchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if domain.IsType(err, domain.ErrorTypeConfig) || domain.IsType(err, domain.ErrorTypeValidation) {
		return exitConfig
	}
	return exitFailure
}

// Execute runs the root command and returns the exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(ctx)
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func main() {
	os.Exit(Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
