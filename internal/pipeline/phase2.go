package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
)

// WithModel loads the enhancement model, hands it to fn and closes it when
// fn returns. A load failure is returned without calling fn.
func WithModel(ctx context.Context, engine domain.EnhancementEngine, languages []string, fn func(domain.Model) error) (err error) {
	model, err := engine.LoadModel(ctx, languages)
	if err != nil {
		return asType(err, domain.ErrorTypeEngineInvocation, "failed to load "+engine.Name()+" model")
	}
	defer func() {
		if cerr := model.Close(); cerr != nil && err == nil {
			err = domain.EngineInvocationError("failed to close "+model.Name(), cerr)
		}
	}()
	return fn(model)
}

// isCandidate reports whether a scored file goes to the enhancement engine.
func (p *Pipeline) isCandidate(t *domain.FileTask) bool {
	if p.cfg.ForceBaseline {
		return false
	}
	if p.cfg.ForceEnhancement {
		return len(t.Pages) > 0
	}
	return len(t.FlaggedIndices()) >= p.cfg.MinFlaggedPages
}

// runEnhancement routes candidate files through the enhancement engine one
// at a time, in discovery order, sharing a single model handle. The model
// is not loaded when there are no candidates.
func (p *Pipeline) runEnhancement(ctx context.Context, tasks []*domain.FileTask, ev emitter) {
	var candidates []*domain.FileTask
	for _, t := range tasks {
		if t.State() != domain.StateScored {
			continue
		}
		if p.isCandidate(t) {
			candidates = append(candidates, t)
			continue
		}
		mustTransition(t, domain.StateSkipped)
	}
	if len(candidates) == 0 {
		return
	}

	log := p.logger.WithOperation("enhancement")
	log.Info().Int("files", len(candidates)).Str("engine", p.enhancer.Name()).Msg("loading enhancement model")

	err := WithModel(ctx, p.enhancer, p.cfg.Languages, func(model domain.Model) error {
		for _, t := range candidates {
			p.enhanceFile(ctx, model, t, ev)
		}
		return nil
	})
	if err == nil {
		return
	}

	loaded := false
	for _, t := range candidates {
		if t.State() != domain.StateScored {
			loaded = true
			continue
		}
		mustTransition(t, domain.StateEnhancing)
		t.EnhancementErr = err
		mustTransition(t, domain.StateEnhancementFailed)
		ev.error(t.Path, err)
	}
	if loaded {
		log.Warn().Err(err).Msg("enhancement model did not close cleanly")
	} else {
		log.Error().Err(err).Msg("enhancement model failed to load")
	}
}

func (p *Pipeline) enhanceFile(ctx context.Context, model domain.Model, t *domain.FileTask, ev emitter) {
	log := p.logger.WithFile(t.Path)
	indices := t.FlaggedIndices()

	mustTransition(t, domain.StateEnhancing)
	ev.emit(domain.StreamEvent{
		Type:    domain.EventEnhancementStart,
		File:    t.Path,
		Payload: indices,
	})

	start := time.Now()
	out, err := p.invokeEnhance(ctx, model, t.Path, indices)
	t.EnhancementDuration = time.Since(start)

	if err != nil {
		t.EnhancementErr = err
		mustTransition(t, domain.StateEnhancementFailed)
		log.Error().Err(err).Msg("enhancement failed, keeping baseline text")
		ev.error(t.Path, err)
		ev.emit(domain.StreamEvent{Type: domain.EventEnhancementDone, File: t.Path, State: t.State()})
		return
	}

	missing := 0
	for _, idx := range indices {
		page := t.Page(idx)
		text, ok := out.PageText(idx)
		if !ok {
			missing++
			page.RejectEnhancement(domain.ExtractionError(
				fmt.Sprintf("no segment for page %d in %s output", idx+1, p.enhancer.Name()), nil))
			continue
		}
		ref, _ := out.PagePDF(idx)
		page.ApplyEnhancement(text, p.analyzer.Score(text), ref)
	}

	if missing == 0 {
		mustTransition(t, domain.StateEnhanced)
	} else {
		mustTransition(t, domain.StatePartiallyEnhanced)
		log.Warn().Int("missing", missing).Int("requested", len(indices)).Msg("some pages missing from enhancement output")
	}
	log.Info().Int("pages", len(indices)).Dur("duration", t.EnhancementDuration).Str("state", string(t.State())).Msg("enhancement complete")
	ev.emit(domain.StreamEvent{Type: domain.EventEnhancementDone, File: t.Path, State: t.State()})
}

func (p *Pipeline) invokeEnhance(ctx context.Context, model domain.Model, path string, pages []int) (out domain.StructuredOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, domain.EngineInvocationError(fmt.Sprintf("enhancement engine panicked on %s: %v", path, r), nil)
		}
	}()
	out, err = p.enhancer.Enhance(ctx, path, model, pages)
	if err != nil {
		return nil, asType(err, domain.ErrorTypeEngineInvocation, p.enhancer.Name()+" failed on "+path)
	}
	if out == nil {
		return nil, domain.EngineInvocationError(p.enhancer.Name()+" returned no output for "+path, nil)
	}
	return out, nil
}

// mustTransition applies a state change the pipeline guarantees is legal.
func mustTransition(t *domain.FileTask, to domain.FileState) {
	if err := t.Transition(to); err != nil {
		panic(err)
	}
}
