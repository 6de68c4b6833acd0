package bootstrap

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of bootstrap work.
type Task func(ctx context.Context) error

// Strategy runs tasks fail-fast: once a task fails no further task starts,
// running tasks are allowed to finish and the first error is returned.
type Strategy interface {
	Run(ctx context.Context, tasks []Task) error
	Name() string
}

// Sequential runs tasks one after another.
type Sequential struct{}

func (Sequential) Name() string { return "sequential" }

func (Sequential) Run(ctx context.Context, tasks []Task) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Pool runs up to Size tasks concurrently. After a failure no new task is
// started, tasks already running finish under the caller's context.
type Pool struct {
	Size int
}

func (p Pool) Name() string { return "pool" }

func (p Pool) Run(ctx context.Context, tasks []Task) error {
	g, gctx := errgroup.WithContext(ctx)
	size := p.Size
	if size < 1 {
		size = 1
	}
	g.SetLimit(size)

	started := 0
	for _, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		started++
		task := task
		g.Go(func() error {
			// A slot may free up only after another task failed
			if err := gctx.Err(); err != nil {
				return err
			}
			return task(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if started < len(tasks) {
		return ctx.Err()
	}
	return nil
}

// StrategyFor picks Pool for jobs > 1, Sequential otherwise.
func StrategyFor(jobs int) Strategy {
	if jobs > 1 {
		return Pool{Size: jobs}
	}
	return Sequential{}
}
