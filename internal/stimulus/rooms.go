package stimulus

import (
	"context"
	"time"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// RoomSystem opens each tick by emitting ambient room stimuli and turning
// agent appearance changes into visual stimuli for their room.
type RoomSystem struct {
	store        *world.Store
	manager      *Manager
	ambientEvery int // emit room ambience every N ticks
	tick         int
	lastRun      time.Time
	logger       *zap.Logger
}

// NewRoomSystem creates the ambient/appearance stimulus emitter.
func NewRoomSystem(store *world.Store, manager *Manager, ambientEvery int, logger *zap.Logger) *RoomSystem {
	if ambientEvery <= 0 {
		ambientEvery = 10
	}
	return &RoomSystem{
		store:        store,
		manager:      manager,
		ambientEvery: ambientEvery,
		logger:       logger,
	}
}

// Name implements sim.System.
func (r *RoomSystem) Name() string { return "rooms" }

// Tick implements sim.System.
func (r *RoomSystem) Tick(_ context.Context, now time.Time) error {
	r.tick++

	if r.tick%r.ambientEvery == 0 {
		for _, roomID := range r.store.EntitiesWith(world.CompRoom) {
			room, ok := world.Get[world.Room](r.store, world.CompRoom, roomID)
			if !ok || room.Ambience == "" {
				continue
			}
			r.emit(CreateRequest{
				Type:       world.StimulusEnvironmental,
				Source:     roomID,
				SourceKind: world.SourceRoom,
				Room:       roomID,
				Content:    room.Ambience,
			})
		}
	}

	// Appearance changes since the last run become visual stimuli.
	for _, agentID := range r.store.EntitiesWith(world.CompAppearance) {
		ap, ok := world.Get[world.Appearance](r.store, world.CompAppearance, agentID)
		if !ok || !ap.ChangedAt.After(r.lastRun) {
			continue
		}
		roomID, ok := world.RoomOf(r.store, agentID)
		if !ok {
			continue
		}
		agent, _ := world.Get[world.Agent](r.store, world.CompAgent, agentID)
		r.emit(CreateRequest{
			Type:       world.StimulusVisual,
			Source:     agentID,
			SourceKind: world.SourceAgent,
			Room:       roomID,
			Content:    agent.Name + " now appears: " + ap.Description,
		})
	}

	r.lastRun = now
	return nil
}

func (r *RoomSystem) emit(req CreateRequest) {
	if _, err := r.manager.Create(req); err != nil {
		r.logger.Warn("ambient stimulus rejected", zap.Error(err))
	}
}

// CleanupSystem closes each tick with the decay pass and removal sweep.
type CleanupSystem struct {
	manager *Manager
	pub     sim.Publisher
	store   *world.Store
	logger  *zap.Logger
}

// NewCleanupSystem creates the end-of-tick stimulus cleanup stage.
func NewCleanupSystem(store *world.Store, manager *Manager, pub sim.Publisher, logger *zap.Logger) *CleanupSystem {
	return &CleanupSystem{manager: manager, pub: pub, store: store, logger: logger}
}

// Name implements sim.System.
func (c *CleanupSystem) Name() string { return "cleanup" }

// Tick implements sim.System.
func (c *CleanupSystem) Tick(_ context.Context, _ time.Time) error {
	tagged := c.manager.DecayPass()

	// Publish removals before the sweep invalidates the entities.
	if tagged > 0 {
		for _, id := range c.store.EntitiesWith(world.CompCleanup) {
			st, ok := world.Get[world.Stimulus](c.store, world.CompStimulus, id)
			if !ok {
				continue
			}
			channel := sim.RoomWildcard
			if rels := c.store.RelationsFrom(world.RelStimulusInRoom, id); len(rels) > 0 {
				channel = sim.RoomChannel(rels[0].Target)
			}
			c.pub.Publish(sim.Event{
				Type:      sim.EventStimulusRemoved,
				Channel:   channel,
				Entity:    id,
				Data:      st,
				Timestamp: time.Now(),
			})
		}
	}

	c.manager.Sweep()
	return nil
}
