package config

import (
	"io"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/llm"
	"github.com/spherical/scan-ocr/internal/observability"
	"github.com/spherical/scan-ocr/internal/ocr/ocrmypdf"
	"github.com/spherical/scan-ocr/internal/ocr/tesseract"
	"github.com/spherical/scan-ocr/internal/quality"
)

// Logger builds the run logger writing to w.
func (c *Config) Logger(w io.Writer) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       c.Observability.LogLevel,
		Format:      c.Observability.LogFormat,
		Output:      w,
		ServiceName: "scan-ocr",
	})
}

// BaselineEngine builds the configured fast engine.
func (c *Config) BaselineEngine() domain.BaselineEngine {
	if c.Baseline.Engine == EngineTesseract {
		return tesseract.New(c.Baseline.DPI)
	}
	return ocrmypdf.New(ocrmypdf.WithBinary(c.Baseline.Binary), ocrmypdf.WithArgs(c.Baseline.ExtraArgs...))
}

// EnhancementEngine builds the model-based engine.
func (c *Config) EnhancementEngine(logger *observability.Logger) domain.EnhancementEngine {
	retry := llm.DefaultRetryConfig()
	retry.MaxRetries = c.Enhancement.MaxRetries
	client := llm.NewClient(c.Enhancement.APIKey, c.Enhancement.Model,
		llm.WithBaseURL(c.Enhancement.BaseURL),
		llm.WithRetry(retry),
		llm.WithLogger(logger.WithOperation("llm")),
	)
	return llm.NewEngine(client, llm.WithDPI(c.Enhancement.DPI), llm.WithJPEGQuality(c.Enhancement.JPEGQuality))
}

// Analyzer builds the quality analyzer, loading any configured term files.
func (c *Config) Analyzer() (*quality.Analyzer, error) {
	opts := []quality.Option{}
	if c.Quality.DisableDefaultWhitelist {
		opts = append(opts, quality.WithoutDefaultWhitelist())
	}
	if c.Quality.WhitelistPath != "" {
		terms, err := quality.LoadTermsFile(c.Quality.WhitelistPath)
		if err != nil {
			return nil, domain.ConfigError("load whitelist", err)
		}
		opts = append(opts, quality.WithWhitelist(terms...))
	}
	if c.Quality.LexiconPath != "" {
		terms, err := quality.LoadTermsFile(c.Quality.LexiconPath)
		if err != nil {
			return nil, domain.ConfigError("load lexicon", err)
		}
		opts = append(opts, quality.WithLexicon(terms...))
	}
	return quality.New(c.Pipeline.QualityThreshold, c.Pipeline.ForceEnhancement, opts...), nil
}
