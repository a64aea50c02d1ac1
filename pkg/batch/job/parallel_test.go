package job_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemstep/pkg/batch/job"
)

type fakeRunner struct {
	name    string
	err     error
	delay   time.Duration
	ran     atomic.Bool
	active  *atomic.Int32
	maxSeen *atomic.Int32
}

func (r *fakeRunner) Name() string { return r.name }

func (r *fakeRunner) Run(ctx context.Context) error {
	r.ran.Store(true)
	if r.active != nil {
		n := r.active.Add(1)
		defer r.active.Add(-1)
		for {
			m := r.maxSeen.Load()
			if n <= m || r.maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
	}
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.err
}

func TestRunParallel_CollectsAllErrors(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	a := &fakeRunner{name: "a", err: errA}
	b := &fakeRunner{name: "b"}
	c := &fakeRunner{name: "c", err: errC}

	err := job.RunParallel(context.Background(), 0, a, b, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.True(t, b.ran.Load(), "失敗した Runner があっても他は実行される")
}

func TestRunParallel_RespectsLimit(t *testing.T) {
	var active, maxSeen atomic.Int32
	runners := make([]job.Runner, 6)
	for i := range runners {
		runners[i] = &fakeRunner{name: "r", delay: 20 * time.Millisecond, active: &active, maxSeen: &maxSeen}
	}

	require.NoError(t, job.RunParallel(context.Background(), 2, runners...))
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
	assert.GreaterOrEqual(t, maxSeen.Load(), int32(1))
}

func TestRunParallel_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeRunner{name: "late", delay: time.Second}
	err := job.RunParallel(ctx, 1, r)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, r.ran.Load())
}

func TestRunParallel_Empty(t *testing.T) {
	assert.NoError(t, job.RunParallel(context.Background(), 4))
}
