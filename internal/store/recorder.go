package store

import (
	"context"
	"time"

	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// Recorder is the optional persistence stage. It runs last in the tick
// pipeline and mirrors world state into Postgres; write failures are logged
// and never fault the scheduler.
type Recorder struct {
	store *Store
	ws    *world.Store
	stim  *stimulus.Manager
	every int
	tick  int
	saved map[world.EntityID]map[string]bool // persisted chains per agent
}

// NewRecorder creates a recorder that persists every nth tick.
func NewRecorder(store *Store, ws *world.Store, stim *stimulus.Manager, every int) *Recorder {
	if every <= 0 {
		every = 5
	}
	return &Recorder{
		store: store,
		ws:    ws,
		stim:  stim,
		every: every,
		saved: make(map[world.EntityID]map[string]bool),
	}
}

// Name implements sim.System.
func (r *Recorder) Name() string { return "recorder" }

// Tick implements sim.System.
func (r *Recorder) Tick(ctx context.Context, now time.Time) error {
	r.tick++
	if r.tick%r.every != 0 {
		return nil
	}

	agents := r.ws.EntitiesWith(world.CompAgent)
	for _, id := range agents {
		snap, ok := world.SnapshotAgent(r.ws, id)
		if !ok {
			continue
		}
		roomName := ""
		if room, ok := world.Get[world.Room](r.ws, world.CompRoom, snap.Room); ok {
			roomName = room.Name
		}
		if err := r.store.SaveAgentState(ctx, snap, roomName); err != nil {
			r.store.logger.Warn("agent state persist failed", zap.String("agent", snap.Name), zap.Error(err))
			continue
		}
		r.persistThoughts(ctx, id, snap.Name)
	}

	if err := r.store.SaveTickReport(ctx, uint64(r.tick), len(agents), r.stim.ActiveCount()); err != nil {
		r.store.logger.Warn("tick report persist failed", zap.Error(err))
	}
	return nil
}

// persistThoughts writes only the chains that appeared since the last pass.
func (r *Recorder) persistThoughts(ctx context.Context, id world.EntityID, name string) {
	thought, ok := world.Get[world.Thought](r.ws, world.CompThought, id)
	if !ok || len(thought.Records) == 0 {
		return
	}
	done := r.saved[id]
	if done == nil {
		done = make(map[string]bool)
		r.saved[id] = done
	}
	var fresh []world.ThoughtRecord
	for _, rec := range thought.Records {
		if !done[rec.ChainID] {
			fresh = append(fresh, rec)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := r.store.SaveThoughts(ctx, name, fresh); err != nil {
		r.store.logger.Warn("thought persist failed", zap.String("agent", name), zap.Error(err))
		return
	}

	// Forget chains that fell out of the bounded history, then mark the
	// rest persisted.
	present := make(map[string]bool, len(thought.Records))
	for _, rec := range thought.Records {
		present[rec.ChainID] = true
	}
	for chain := range done {
		if !present[chain] {
			delete(done, chain)
		}
	}
	for _, rec := range fresh {
		done[rec.ChainID] = true
	}
}
