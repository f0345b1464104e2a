package domain

import "context"

// BaselineOutput is what the fast engine produces for one file.
type BaselineOutput struct {
	// PageTexts holds one entry per source page, in page order.
	PageTexts []string
	// SearchablePDF is the intermediate searchable PDF written by the engine.
	SearchablePDF string
}

// BaselineEngine runs the fast first-pass OCR over a whole file.
type BaselineEngine interface {
	Name() string
	// Run OCRs path using at most jobs parallel workers internally and writes
	// its artifacts under workDir.
	Run(ctx context.Context, path string, jobs int, languages []string, workDir string) (*BaselineOutput, error)
}

// Model is a loaded enhancement engine. It is expensive to create and is not
// safe for concurrent use.
type Model interface {
	Name() string
	Close() error
}

// StructuredOutput is the combined result of one enhancement call.
type StructuredOutput interface {
	// PageText returns the enhanced text segment for a requested page index.
	PageText(index int) (string, bool)
	// PagePDF returns a page-level PDF rendition for a requested page index, if
	// the engine produces one.
	PagePDF(index int) (*PageRef, bool)
}

// EnhancementEngine is the slow, model-based engine.
type EnhancementEngine interface {
	Name() string
	LoadModel(ctx context.Context, languages []string) (Model, error)
	// Enhance processes all requested pages of path in a single invocation.
	Enhance(ctx context.Context, path string, model Model, pages []int) (StructuredOutput, error)
}

// Scorer assigns a garbling score in [0,1] to a page's text.
type Scorer interface {
	Score(text string) float64
}
