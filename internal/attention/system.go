package attention

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/vault-city/internal/perception"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// System maintains each agent's bounded, decaying focus stack and derives
// its attention mode from the tick's filtered perceptions.
type System struct {
	store  *world.Store
	filter *perception.Filter
	pool   *sim.Pool
	pub    sim.Publisher
	cfg    Config
	logger *zap.Logger
}

// NewSystem creates the attention stage.
func NewSystem(store *world.Store, filter *perception.Filter, pool *sim.Pool, pub sim.Publisher, cfg Config, logger *zap.Logger) *System {
	if cfg.Capacity <= 0 {
		cfg = DefaultConfig()
	}
	return &System{
		store:  store,
		filter: filter,
		pool:   pool,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
	}
}

// Name implements sim.System.
func (s *System) Name() string { return "attention" }

// Tick implements sim.System. Scoring fans out per agent; the merged
// components are written back serially at the fan-in barrier in ascending
// entity order.
func (s *System) Tick(ctx context.Context, now time.Time) error {
	agents := s.store.EntitiesWith(world.CompAgent)

	type outcome struct {
		att  world.Attention
		prev string
	}
	results := make(map[world.EntityID]outcome, len(agents))
	var mu sync.Mutex

	s.pool.Each(ctx, agents, func(_ context.Context, id world.EntityID) error {
		percepts := s.filter.Latest(id)
		att, _ := world.Get[world.Attention](s.store, world.CompAttention, id)
		goals, _ := world.Get[world.Goal](s.store, world.CompGoal, id)
		wm, _ := world.Get[world.WorkingMemory](s.store, world.CompWorkingMemory, id)

		incoming := make([]salience, 0, len(percepts))
		for _, p := range percepts {
			incoming = append(incoming, scorePercept(p, goals.ActiveGoals(), wm, s.cfg))
		}

		since := time.Duration(0)
		if !att.UpdatedAt.IsZero() {
			since = now.Sub(att.UpdatedAt)
		}
		next := world.Attention{
			Focus:     mergeFocus(att.Focus, incoming, since, now, s.cfg),
			UpdatedAt: now,
		}
		next.Mode = deriveMode(next.Focus, len(percepts))

		mu.Lock()
		results[id] = outcome{att: next, prev: att.Mode}
		mu.Unlock()
		return nil
	})

	for _, id := range agents {
		res, ok := results[id]
		if !ok {
			continue
		}
		if err := s.store.Attach(world.CompAttention, id, res.att); err != nil {
			s.logger.Warn("attention write failed", zap.Uint64("agent", uint64(id)), zap.Error(err))
			continue
		}
		if res.att.Mode != res.prev {
			s.logger.Debug("attention mode changed",
				zap.Uint64("agent", uint64(id)),
				zap.String("from", res.prev),
				zap.String("to", res.att.Mode))
			s.pub.Publish(sim.Event{
				Type:      sim.EventAgentState,
				Channel:   sim.AgentChannel(id),
				Entity:    id,
				State:     true,
				Data:      map[string]string{"attention_mode": res.att.Mode},
				Timestamp: time.Now(),
			})
		}
	}
	return nil
}

// ForReasoning returns the perceptions to hand to the reasoning stage. In
// focused mode they are narrowed to the top focus target and its source.
func (s *System) ForReasoning(agentID world.EntityID) []stimulus.Percept {
	percepts := s.filter.Latest(agentID)
	att, ok := world.Get[world.Attention](s.store, world.CompAttention, agentID)
	if !ok || att.Mode != ModeFocused || len(att.Focus) == 0 {
		return percepts
	}
	top := att.Focus[0]
	var narrowed []stimulus.Percept
	for _, p := range percepts {
		if p.ID == top.Target || p.Stimulus.SourceID == top.Target {
			narrowed = append(narrowed, p)
		}
	}
	return narrowed
}

// Mode returns an agent's current attention mode.
func (s *System) Mode(agentID world.EntityID) string {
	att, ok := world.Get[world.Attention](s.store, world.CompAttention, agentID)
	if !ok {
		return ModeWandering
	}
	return att.Mode
}
