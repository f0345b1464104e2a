package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/planner"
)

// runBaseline runs the baseline engine over every task with a pool of
// plan.PoolWorkers goroutines, each granting the engine plan.JobsPerFile
// jobs. Tasks fail independently; no task is retried.
func (p *Pipeline) runBaseline(ctx context.Context, tasks []*domain.FileTask, plan planner.Plan, workDir string, ev emitter) {
	if len(tasks) == 0 {
		return
	}

	workChan := make(chan *domain.FileTask, len(tasks))
	for _, t := range tasks {
		workChan <- t
	}
	close(workChan)

	var wg sync.WaitGroup
	for i := 0; i < plan.PoolWorkers && i < len(tasks); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range workChan {
				p.baselineFile(ctx, t, plan.JobsPerFile, workDir, ev)
			}
		}()
	}
	wg.Wait()
}

func (p *Pipeline) baselineFile(ctx context.Context, t *domain.FileTask, jobs int, workDir string, ev emitter) {
	log := p.logger.WithFile(t.Path)
	ev.emit(domain.StreamEvent{Type: domain.EventFileStart, Phase: domain.PhaseBaseline, File: t.Path})

	start := time.Now()
	err := p.baselinePages(ctx, t, jobs, workDir)
	t.BaselineDuration = time.Since(start)
	if err != nil {
		log.Error().Err(err).Msg("baseline OCR failed")
		t.Fail(err)
		ev.error(t.Path, err)
		ev.emit(domain.StreamEvent{Type: domain.EventFileDone, Phase: domain.PhaseBaseline, File: t.Path, State: t.State()})
		return
	}

	for _, page := range t.Pages {
		page.BaselineScore = p.analyzer.Score(page.BaselineText)
		page.Flagged = p.analyzer.Flag(page.BaselineScore)
		ev.emit(domain.StreamEvent{
			Type:    domain.EventPageScored,
			File:    t.Path,
			Page:    page.Index,
			Score:   page.BaselineScore,
			Flagged: page.Flagged,
		})
	}
	if err := t.Transition(domain.StateScored); err != nil {
		panic(err)
	}
	ev.emit(domain.StreamEvent{Type: domain.EventFileDone, Phase: domain.PhaseBaseline, File: t.Path, State: t.State()})
	log.Info().
		Int("pages", len(t.Pages)).
		Int("flagged", len(t.FlaggedIndices())).
		Dur("duration", t.BaselineDuration).
		Msg("baseline OCR complete")
}

// baselinePages counts the source pages, runs the engine and builds one
// record per page. A panicking engine is reported as an invocation error.
func (p *Pipeline) baselinePages(ctx context.Context, t *domain.FileTask, jobs int, workDir string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.EngineInvocationError(fmt.Sprintf("baseline engine panicked on %s: %v", t.Path, r), nil)
		}
	}()

	n, err := p.counter.PageCount(t.Path)
	if err != nil {
		return asType(err, domain.ErrorTypeSourceIO, "failed to read "+t.Path)
	}
	t.SourcePages = n

	dir := fileWorkDir(workDir, t)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.SourceIOError("failed to create work directory", err)
	}

	out, err := p.baseline.Run(ctx, t.Path, jobs, p.cfg.Languages, dir)
	if err != nil {
		return asType(err, domain.ErrorTypeEngineInvocation, p.baseline.Name()+" failed on "+t.Path)
	}
	if out == nil || len(out.PageTexts) != n {
		got := 0
		if out != nil {
			got = len(out.PageTexts)
		}
		return domain.EngineInvocationError(fmt.Sprintf("%s returned %d pages for %s, source has %d", p.baseline.Name(), got, t.Path, n), nil)
	}

	t.SearchablePDF = out.SearchablePDF
	t.Pages = make([]*domain.PageRecord, n)
	for i, text := range out.PageTexts {
		t.Pages[i] = domain.NewPageRecord(i, text)
	}
	return nil
}

func fileWorkDir(workDir string, t *domain.FileTask) string {
	return filepath.Join(workDir, fmt.Sprintf("%03d-%s", t.Order, domain.Stem(t.Path)))
}

// asType returns err unchanged if it already carries a domain type, and
// wraps it as errType otherwise.
func asType(err error, errType domain.ErrorType, msg string) error {
	if _, ok := domain.TypeOf(err); ok {
		return err
	}
	return domain.NewError(errType, msg, err)
}
