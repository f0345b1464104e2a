package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
)

func scoredTask(t *testing.T, path string, order int, texts ...string) *domain.FileTask {
	t.Helper()
	task := domain.NewFileTask(path, order)
	for i, text := range texts {
		p := domain.NewPageRecord(i, text)
		p.BaselineScore = 0.5
		task.Pages = append(task.Pages, p)
	}
	require.NoError(t, task.Transition(domain.StateScored))
	return task
}

func TestAggregate(t *testing.T) {
	enhanced := scoredTask(t, "a.pdf", 0, "x", "y", "z")
	require.NoError(t, enhanced.Transition(domain.StateEnhancing))
	enhanced.Pages[0].ApplyEnhancement("better", 0.9, nil)
	enhanced.Pages[1].ApplyEnhancement("worse", 0.4, nil)
	require.NoError(t, enhanced.Transition(domain.StateEnhanced))
	require.NoError(t, enhanced.Transition(domain.StateFinalized))

	failed := domain.NewFileTask("b.pdf", 1)
	failed.Fail(domain.SourceIOError("unreadable", nil))
	require.NoError(t, failed.Transition(domain.StateFinalized))

	enhFailed := scoredTask(t, "c.pdf", 2, "q")
	require.NoError(t, enhFailed.Transition(domain.StateEnhancing))
	enhFailed.EnhancementErr = domain.EngineInvocationError("timeout", errors.New("deadline"))
	require.NoError(t, enhFailed.Transition(domain.StateEnhancementFailed))
	require.NoError(t, enhFailed.Transition(domain.StateFinalized))

	r := Aggregate("run", []*domain.FileTask{enhanced, failed, enhFailed}, time.Second)
	assert.Equal(t, "run", r.RunID)
	assert.Equal(t, 3, r.FilesProcessed)
	assert.Equal(t, 1, r.FilesSucceeded)
	assert.Equal(t, 2, r.FilesFailed)
	assert.Equal(t, 4, r.PagesProcessed)
	assert.Equal(t, 2, r.PagesEnhanced)
	assert.Equal(t, 1, r.PagesImproved)
	assert.InDelta(t, 1.0/3.0, r.SuccessRate, 1e-9)
	assert.Equal(t, time.Second, r.Duration)

	assert.Equal(t, domain.StateEnhanced, r.Files[0].State)
	assert.Equal(t, "better", r.Files[0].Pages[0].Text)
	assert.Equal(t, "z", r.Files[0].Pages[2].Text)
	assert.Equal(t, domain.StateFailed, r.Files[1].State)
	assert.Equal(t, domain.StateEnhancementFailed, r.Files[2].State)
	assert.Contains(t, r.Files[2].Error, "deadline")
	assert.Len(t, r.Files[2].Pages, 1, "baseline pages survive an enhancement failure")

	failedFiles := r.FailedFiles()
	require.Len(t, failedFiles, 2)
	assert.Equal(t, "b.pdf", failedFiles[0].Path)
}

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate("run", nil, 0)
	assert.Empty(t, r.Files)
	assert.Zero(t, r.SuccessRate)
	assert.True(t, r.Failed())
}

func TestSnapshotIsIndependent(t *testing.T) {
	task := scoredTask(t, "a.pdf", 0, "x")
	require.NoError(t, task.Transition(domain.StateEnhancing))
	task.Pages[0].ApplyEnhancement("y", 0.7, nil)

	snap := Snapshot(task)
	*task.Pages[0].EnhancedScore = 0.1
	task.Pages[0].RejectEnhancement(errors.New("late"))

	require.NotNil(t, snap.Pages[0].EnhancedScore)
	assert.Equal(t, 0.7, *snap.Pages[0].EnhancedScore)
	assert.Equal(t, "y", snap.Pages[0].Text)
}

func TestMergeText(t *testing.T) {
	a := domain.NewPageRecord(0, "first")
	b := domain.NewPageRecord(1, "second")
	b.ApplyEnhancement("second, enhanced", 1, nil)
	c := domain.NewPageRecord(2, "")
	assert.Equal(t, "first\fsecond, enhanced\f", MergeText([]*domain.PageRecord{a, b, c}))
	assert.Equal(t, "", MergeText(nil))
}

func TestOutputPaths(t *testing.T) {
	text, pdfPath := OutputPaths("/out", "/in/Being and Time.pdf")
	assert.Equal(t, "/out/Being and Time.txt", text)
	assert.Equal(t, "/out/Being and Time.pdf", pdfPath)
}
