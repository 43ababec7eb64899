package instance

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/agentsignal/agentserver/agent"
)

// maxConcurrentChildren bounds how many ChildSpec handlers this instance's
// default SpawnFunc runs at once; a spawn beyond the limit blocks until a
// slot frees, the same backpressure shape as the teacher's inmem engine
// bounding concurrent runs.
const maxConcurrentChildren = 256

// supervisor tracks goroutines started on behalf of Spawn directives when
// the caller doesn't supply its own SpawnFunc (§4.1).
type supervisor struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	children map[int64]context.CancelFunc
	nextID   int64
}

func newSupervisor() *supervisor {
	return &supervisor{
		sem:      semaphore.NewWeighted(maxConcurrentChildren),
		children: make(map[int64]context.CancelFunc),
	}
}

// spawnFunc returns an agent.SpawnFunc backed by this supervisor: it starts
// spec.Handler in its own goroutine, bounded by the instance's concurrency
// limit, and returns a cancel handle plus a done channel closed on exit.
func (sup *supervisor) spawnFunc() agent.SpawnFunc {
	return func(spec agent.ChildSpec) (func(), <-chan struct{}, error) {
		ctx, cancel := context.WithCancel(context.Background())
		if err := sup.sem.Acquire(ctx, 1); err != nil {
			cancel()
			return nil, nil, err
		}

		sup.mu.Lock()
		id := sup.nextID
		sup.nextID++
		sup.children[id] = cancel
		sup.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer sup.sem.Release(1)
			defer close(done)
			defer func() {
				sup.mu.Lock()
				delete(sup.children, id)
				sup.mu.Unlock()
			}()
			_ = spec.Handler(ctx)
		}()

		return cancel, done, nil
	}
}

func (sup *supervisor) stopAll() {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	for _, cancel := range sup.children {
		cancel()
	}
}
