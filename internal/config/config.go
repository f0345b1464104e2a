// Package config provides unified configuration loading for scan-ocr.
// Supports YAML files, .env files, environment variables, and programmatic
// overrides from the CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Baseline engine names.
const (
	EngineOCRmyPDF  = "ocrmypdf"
	EngineTesseract = "tesseract"
)

// Config holds all configuration for scan-ocr.
type Config struct {
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Baseline      BaselineConfig      `yaml:"baseline"`
	Enhancement   EnhancementConfig   `yaml:"enhancement"`
	Quality       QualityConfig       `yaml:"quality"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PipelineConfig holds run-wide routing settings.
type PipelineConfig struct {
	OutputDir        string   `yaml:"output_dir"`
	WorkDir          string   `yaml:"work_dir"`
	QualityThreshold float64  `yaml:"quality_threshold"`
	Workers          int      `yaml:"workers"` // 0 = detect
	Languages        []string `yaml:"languages"`
	MinFlaggedPages  int      `yaml:"min_flagged_pages"`
	ForceBaseline    bool     `yaml:"force_baseline"`
	ForceEnhancement bool     `yaml:"force_enhancement"`
}

// BaselineConfig selects and tunes the fast engine.
type BaselineConfig struct {
	Engine    string   `yaml:"engine"` // ocrmypdf or tesseract
	Binary    string   `yaml:"binary"`
	ExtraArgs []string `yaml:"extra_args"`
	DPI       float64  `yaml:"dpi"`
}

// EnhancementConfig holds settings for the model-based engine.
type EnhancementConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	DPI         float64 `yaml:"dpi"`
	JPEGQuality int     `yaml:"jpeg_quality"`
	MaxRetries  int     `yaml:"max_retries"`
}

// QualityConfig points at extra term lists for the analyzer.
type QualityConfig struct {
	WhitelistPath           string `yaml:"whitelist_path"`
	LexiconPath             string `yaml:"lexicon_path"`
	DisableDefaultWhitelist bool   `yaml:"disable_default_whitelist"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides and finally any programmatic overrides (CLI flags) before
// validating. An empty path uses defaults. Every failure is a ConfigError.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the environment. Missing files are ignored;
// variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return domain.ConfigError("load "+p, err)
		}
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			OutputDir:        "output",
			QualityThreshold: domain.DefaultQualityThreshold,
			Languages:        []string{"eng"},
			MinFlaggedPages:  1,
		},
		Baseline: BaselineConfig{
			Engine: EngineOCRmyPDF,
			DPI:    300,
		},
		Enhancement: EnhancementConfig{
			Model:       "google/gemini-2.5-flash-preview-09-2025",
			BaseURL:     "https://openrouter.ai/api/v1",
			DPI:         200,
			JPEGQuality: 85,
			MaxRetries:  3,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Baseline.Engine != EngineOCRmyPDF && c.Baseline.Engine != EngineTesseract {
		return domain.ConfigError(fmt.Sprintf("invalid baseline engine: %q", c.Baseline.Engine), nil)
	}
	if c.Enhancement.JPEGQuality < 1 || c.Enhancement.JPEGQuality > 100 {
		return domain.ConfigError(fmt.Sprintf("jpeg_quality must be between 1 and 100, got %d", c.Enhancement.JPEGQuality), nil)
	}
	if c.Enhancement.MaxRetries < 0 {
		return domain.ConfigError("max_retries cannot be negative", nil)
	}
	if !c.Pipeline.ForceBaseline && strings.TrimSpace(c.Enhancement.APIKey) == "" {
		return domain.ConfigError("OPENROUTER_API_KEY is required unless force_baseline is set", nil)
	}
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid log format: %q", c.Observability.LogFormat), nil)
	}
	return c.Domain(nil).Validate()
}

// Domain builds the pipeline's run configuration for inputs.
func (c *Config) Domain(inputs []string) domain.PipelineConfig {
	p := c.Pipeline
	return domain.PipelineConfig{
		Inputs:           append([]string(nil), inputs...),
		OutputDir:        p.OutputDir,
		QualityThreshold: p.QualityThreshold,
		ForceBaseline:    p.ForceBaseline,
		ForceEnhancement: p.ForceEnhancement,
		Workers:          p.Workers,
		Languages:        append([]string(nil), p.Languages...),
		MinFlaggedPages:  p.MinFlaggedPages,
		WorkDir:          p.WorkDir,
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SCANOCR_OUTPUT_DIR"); v != "" {
		cfg.Pipeline.OutputDir = v
	}
	if v := os.Getenv("SCANOCR_WORK_DIR"); v != "" {
		cfg.Pipeline.WorkDir = v
	}
	if v := os.Getenv("SCANOCR_QUALITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.ConfigError("SCANOCR_QUALITY_THRESHOLD", err)
		}
		cfg.Pipeline.QualityThreshold = f
	}
	if v := os.Getenv("SCANOCR_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.ConfigError("SCANOCR_WORKERS", err)
		}
		cfg.Pipeline.Workers = n
	}
	if v := os.Getenv("SCANOCR_LANGUAGES"); v != "" {
		cfg.Pipeline.Languages = ParseLanguages(v)
	}
	if v := os.Getenv("SCANOCR_BASELINE_ENGINE"); v != "" {
		cfg.Baseline.Engine = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Enhancement.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		cfg.Enhancement.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Enhancement.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	return nil
}

// ParseLanguages splits a Tesseract-style language list ("eng+deu" or "eng,deu").
func ParseLanguages(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}
