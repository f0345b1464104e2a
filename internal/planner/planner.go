// Package planner sizes the Phase-1 worker pool against the machine's CPU
// budget so that pool workers and each engine's internal jobs never
// oversubscribe it.
package planner

import (
	"fmt"
	"runtime"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Plan is the concurrency budget for one run.
type Plan struct {
	Capacity    int
	PoolWorkers int
	JobsPerFile int
}

// Capacity returns the usable parallelism: the hint when positive, otherwise
// the number of CPUs this process may run on.
func Capacity(hint int) int {
	if hint > 0 {
		return hint
	}
	return runtime.NumCPU()
}

// New computes a plan for files inputs on capacity CPUs.
// PoolWorkers*JobsPerFile never exceeds capacity. With no files the plan is
// still valid, just unused.
func New(capacity, files int) (Plan, error) {
	if capacity <= 0 {
		return Plan{}, domain.ConfigError(fmt.Sprintf("capacity must be positive, got %d", capacity), nil)
	}
	if files < 0 {
		return Plan{}, domain.ConfigError(fmt.Sprintf("file count cannot be negative, got %d", files), nil)
	}
	workers := min(capacity, max(files, 1))
	return Plan{
		Capacity:    capacity,
		PoolWorkers: workers,
		JobsPerFile: max(1, capacity/workers),
	}, nil
}

func (p Plan) String() string {
	return fmt.Sprintf("%d workers x %d jobs (capacity %d)", p.PoolWorkers, p.JobsPerFile, p.Capacity)
}
