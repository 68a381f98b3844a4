package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// Pool bounds concurrent per-agent work inside a system and isolates
// failures: a panic or error in one agent's work is logged at that agent's
// boundary and never propagates to siblings.
type Pool struct {
	slots  chan struct{}
	logger *zap.Logger
}

// NewPool creates a pool with the given concurrency limit.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 10
	}
	return &Pool{
		slots:  make(chan struct{}, size),
		logger: logger,
	}
}

// Each runs fn concurrently for every id and blocks until all complete
// (the fan-in barrier). It returns the number of failed agents.
func (p *Pool) Each(ctx context.Context, ids []world.EntityID, fn func(ctx context.Context, id world.EntityID) error) int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, id := range ids {
		wg.Add(1)
		go func(id world.EntityID) {
			defer wg.Done()
			p.slots <- struct{}{}
			defer func() { <-p.slots }()

			if err := p.run(ctx, id, fn); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				p.logger.Warn("agent work failed",
					zap.Uint64("agent", uint64(id)),
					zap.Error(err))
			}
		}(id)
	}
	wg.Wait()
	return failed
}

// run invokes fn with panic recovery at the single-agent boundary.
func (p *Pool) run(ctx context.Context, id world.EntityID, fn func(ctx context.Context, id world.EntityID) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, id)
}
