package pipeline

import (
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Snapshot freezes a task into its result.
func Snapshot(t *domain.FileTask) domain.FileResult {
	r := domain.FileResult{
		Path:                t.Path,
		Pages:               make([]domain.PageResult, 0, len(t.Pages)),
		State:               t.Outcome(),
		Success:             !t.Failed(),
		TextPath:            t.TextPath,
		PDFPath:             t.PDFPath,
		BaselineDuration:    t.BaselineDuration,
		EnhancementDuration: t.EnhancementDuration,
		WritebackDuration:   t.WritebackDuration,
	}
	switch {
	case t.Err != nil:
		r.Err = t.Err
	case t.EnhancementErr != nil:
		r.Err = t.EnhancementErr
	}
	if r.Err != nil {
		r.Error = r.Err.Error()
	}

	for _, p := range t.Pages {
		pr := domain.PageResult{
			Index:         p.Index,
			Text:          p.Text(),
			Engine:        p.Engine,
			Flagged:       p.Flagged,
			BaselineScore: p.BaselineScore,
		}
		if p.EnhancedScore != nil {
			s := *p.EnhancedScore
			pr.EnhancedScore = &s
		}
		if p.Err != nil {
			pr.Error = p.Err.Error()
		}
		r.Pages = append(r.Pages, pr)
	}
	return r
}

// Aggregate builds the batch result from finished tasks, in discovery order.
// It never fails; failed files contribute a result with their error.
func Aggregate(runID string, tasks []*domain.FileTask, elapsed time.Duration) *domain.BatchResult {
	b := &domain.BatchResult{
		RunID:    runID,
		Files:    make([]domain.FileResult, 0, len(tasks)),
		Duration: elapsed,
	}
	for _, t := range tasks {
		r := Snapshot(t)
		b.Files = append(b.Files, r)
		b.FilesProcessed++
		if r.Success {
			b.FilesSucceeded++
		} else {
			b.FilesFailed++
		}
		for _, p := range r.Pages {
			b.PagesProcessed++
			if p.Engine == domain.EngineEnhancement {
				b.PagesEnhanced++
			}
			if p.Improved() {
				b.PagesImproved++
			}
		}
	}
	if b.FilesProcessed > 0 {
		b.SuccessRate = float64(b.FilesSucceeded) / float64(b.FilesProcessed)
	}
	return b
}
