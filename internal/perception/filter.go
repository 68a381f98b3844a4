package perception

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// Filter gathers and ranks the stimuli each agent can perceive this tick.
// Results are cached per agent for the downstream attention stage.
type Filter struct {
	store   *world.Store
	stimuli *stimulus.Manager
	pool    *sim.Pool
	latest  map[world.EntityID][]stimulus.Percept
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewFilter creates the perception stage.
func NewFilter(store *world.Store, stimuli *stimulus.Manager, pool *sim.Pool, logger *zap.Logger) *Filter {
	return &Filter{
		store:   store,
		stimuli: stimuli,
		pool:    pool,
		latest:  make(map[world.EntityID][]stimulus.Percept),
		logger:  logger,
	}
}

// Name implements sim.System.
func (f *Filter) Name() string { return "perception" }

// Tick implements sim.System. Per-agent work fans out concurrently; each
// agent's failure is isolated by the pool.
func (f *Filter) Tick(ctx context.Context, _ time.Time) error {
	agents := f.store.EntitiesWith(world.CompAgent)

	results := make(map[world.EntityID][]stimulus.Percept, len(agents))
	var mu sync.Mutex
	f.pool.Each(ctx, agents, func(_ context.Context, id world.EntityID) error {
		percepts := f.stimuli.Prioritize(f.stimuli.GatherForAgent(id), id)
		mu.Lock()
		results[id] = percepts
		mu.Unlock()
		return nil
	})

	f.mu.Lock()
	f.latest = results
	f.mu.Unlock()
	return nil
}

// Latest returns the most recent ranked percepts for an agent.
func (f *Filter) Latest(agentID world.EntityID) []stimulus.Percept {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest[agentID]
}
