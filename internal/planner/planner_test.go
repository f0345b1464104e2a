package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		files       int
		wantWorkers int
		wantJobs    int
	}{
		{"no files", 8, 0, 1, 8},
		{"one file gets every cpu", 8, 1, 1, 8},
		{"fewer files than cpus", 8, 3, 3, 2},
		{"more files than cpus", 4, 10, 4, 1},
		{"single cpu", 1, 5, 1, 1},
		{"uneven split", 7, 2, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.capacity, tt.files)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWorkers, p.PoolWorkers)
			assert.Equal(t, tt.wantJobs, p.JobsPerFile)
		})
	}
}

func TestNewNeverOversubscribes(t *testing.T) {
	for capacity := 1; capacity <= 64; capacity++ {
		for files := 0; files <= 80; files++ {
			p, err := New(capacity, files)
			require.NoError(t, err)
			assert.LessOrEqual(t, p.PoolWorkers*p.JobsPerFile, capacity, "capacity=%d files=%d", capacity, files)
			assert.GreaterOrEqual(t, p.PoolWorkers, 1)
			assert.GreaterOrEqual(t, p.JobsPerFile, 1)
		}
	}
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := New(c, 3)
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
	}
	_, err := New(4, -1)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 3, Capacity(3))
	assert.GreaterOrEqual(t, Capacity(0), 1)
}
