package worker

import (
	"context"
	"sync"
)

// Group runs a set of workers in parallel. A failing worker does not stop
// the others.
type Group struct {
	workers []*Worker
}

// NewGroup creates a group over workers.
func NewGroup(workers ...*Worker) *Group {
	return &Group{workers: workers}
}

// Workers returns the workers in the group.
func (g *Group) Workers() []*Worker {
	return append([]*Worker(nil), g.workers...)
}

// States returns each worker's state keyed by camera id.
func (g *Group) States() map[string]State {
	out := make(map[string]State, len(g.workers))
	for _, w := range g.workers {
		out[w.ID()] = w.State()
	}
	return out
}

// Run starts every worker and waits until all have returned. It returns the
// errors of failed workers, in worker order.
func (g *Group) Run(ctx context.Context) []error {
	errs := make([]error, len(g.workers))
	var wg sync.WaitGroup
	for i, w := range g.workers {
		i, w := i, w
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = w.Run(ctx)
		}()
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}
