package bootstrap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

func strategies() map[string]Strategy {
	return map[string]Strategy{
		"sequential": Sequential{},
		"pool":       Pool{Size: 4},
	}
}

func TestStrategy_RunsEveryTask(t *testing.T) {
	for name, s := range strategies() {
		t.Run(name, func(t *testing.T) {
			var mu sync.Mutex
			seen := map[int]bool{}
			tasks := make([]Task, 10)
			for i := range tasks {
				i := i
				tasks[i] = func(context.Context) error {
					mu.Lock()
					defer mu.Unlock()
					seen[i] = true
					return nil
				}
			}
			assert.NoError(t, s.Run(context.Background(), tasks))
			assert.Len(t, seen, 10)
		})
	}
}

func TestStrategy_FailFast(t *testing.T) {
	boom := errors.New("boom")
	for name, s := range strategies() {
		t.Run(name, func(t *testing.T) {
			var ran atomic.Int32
			tasks := []Task{func(context.Context) error {
				ran.Add(1)
				return boom
			}}
			for i := 0; i < 20; i++ {
				tasks = append(tasks, func(ctx context.Context) error {
					ran.Add(1)
					select {
					case <-ctx.Done():
					case <-time.After(20 * time.Millisecond):
					}
					return nil
				})
			}

			err := s.Run(context.Background(), tasks)
			assert.ErrorIs(t, err, boom)
			assert.Less(t, int(ran.Load()), len(tasks), "tasks kept starting after a failure")
		})
	}
}

func TestPool_RunningTasksFinishAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	started := make(chan struct{})
	var finished atomic.Bool

	tasks := []Task{
		func(ctx context.Context) error {
			close(started)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
			finished.Store(true)
			return nil
		},
		func(context.Context) error {
			<-started
			return boom
		},
	}

	err := Pool{Size: 2}.Run(context.Background(), tasks)
	assert.ErrorIs(t, err, boom)
	assert.True(t, finished.Load(), "a running task was cancelled by a sibling's failure")
}

func TestPool_LimitsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}
	}

	assert.NoError(t, Pool{Size: 3}.Run(context.Background(), tasks))
	assert.LessOrEqual(t, int(peak.Load()), 3)
}

func TestStrategy_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, s := range strategies() {
		t.Run(name, func(t *testing.T) {
			called := false
			err := s.Run(ctx, []Task{func(context.Context) error {
				called = true
				return nil
			}})
			assert.ErrorIs(t, err, context.Canceled)
			assert.False(t, called)
		})
	}
}

func TestStrategyFor(t *testing.T) {
	assert.Equal(t, Sequential{}, StrategyFor(0))
	assert.Equal(t, Sequential{}, StrategyFor(1))
	assert.Equal(t, Pool{Size: 8}, StrategyFor(8))
}
