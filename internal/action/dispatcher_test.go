package action

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

type capture struct {
	events []sim.Event
}

func (c *capture) Publish(evt sim.Event) { c.events = append(c.events, evt) }

type fixture struct {
	store      *world.Store
	stim       *stimulus.Manager
	dispatcher *Dispatcher
	pub        *capture
	atrium     world.EntityID
	vault      world.EntityID
	agent      world.EntityID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := world.NewStore(world.NewRegistry(), logger)
	atrium, err := world.CreateRoom(store, "atrium", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	vault, err := world.CreateRoom(store, "vault", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	agent, err := world.SpawnAgent(store, world.AgentSeed{Name: "Nora", Room: atrium})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	stim := stimulus.NewManager(store, logger)
	registry := NewRegistry()
	RegisterBuiltins(registry, store, stim)
	pub := &capture{}
	return &fixture{
		store:      store,
		stim:       stim,
		dispatcher: NewDispatcher(store, registry, pub, logger),
		pub:        pub,
		atrium:     atrium,
		vault:      vault,
		agent:      agent,
	}
}

func (f *fixture) queue(t *testing.T, tool string, params map[string]any) {
	t.Helper()
	agent, _ := world.Get[world.Agent](f.store, world.CompAgent, f.agent)
	agent.Pending = &world.Pending{Tool: tool, Parameters: params, QueuedAt: time.Now()}
	if err := f.store.Attach(world.CompAgent, f.agent, agent); err != nil {
		t.Fatalf("queue: %v", err)
	}
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	if err := f.dispatcher.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func TestMoveToRoomRelocatesAgent(t *testing.T) {
	f := newFixture(t)
	f.queue(t, "move_to_room", map[string]any{"room": "vault"})
	f.tick(t)

	roomID, ok := world.RoomOf(f.store, f.agent)
	if !ok || roomID != f.vault {
		t.Errorf("agent in room %d, want %d", roomID, f.vault)
	}
}

func TestSayCreatesAuditoryStimulus(t *testing.T) {
	f := newFixture(t)
	f.queue(t, "say", map[string]any{"message": "hello out there"})
	f.tick(t)

	if f.stim.ActiveCount() != 1 {
		t.Fatalf("active stimuli = %d, want 1", f.stim.ActiveCount())
	}
}

func TestUnknownToolIsReportedFailureNotFault(t *testing.T) {
	f := newFixture(t)
	f.queue(t, "teleport", nil)
	f.tick(t)

	agent, _ := world.Get[world.Agent](f.store, world.CompAgent, f.agent)
	if len(agent.Experience) != 1 {
		t.Fatalf("experience entries = %d, want 1", len(agent.Experience))
	}
	if agent.Experience[0].Success {
		t.Error("unknown tool reported success")
	}
}

func TestLookupIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	result := f.dispatcher.Execute(context.Background(), "Move_To_Room", f.agent, map[string]any{"room": "vault"})
	if result.Success {
		t.Error("case-mismatched tool name resolved")
	}
}

func TestPendingSlotClearedAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.queue(t, "move_to_room", map[string]any{"room": "no-such-room"})
	f.tick(t)

	agent, _ := world.Get[world.Agent](f.store, world.CompAgent, f.agent)
	if agent.Pending != nil {
		t.Error("pending slot survived a failed execution")
	}
	if len(agent.Experience) != 1 || agent.Experience[0].Success {
		t.Errorf("failure not recorded: %+v", agent.Experience)
	}
}

func TestExperienceLogBounded(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < MaxExperience+10; i++ {
		f.queue(t, "wait", nil)
		f.tick(t)
	}

	agent, _ := world.Get[world.Agent](f.store, world.CompAgent, f.agent)
	if len(agent.Experience) != MaxExperience {
		t.Errorf("experience length = %d, want %d", len(agent.Experience), MaxExperience)
	}
}

func TestActionResultPublished(t *testing.T) {
	f := newFixture(t)
	f.queue(t, "wait", nil)
	f.tick(t)

	found := false
	for _, evt := range f.pub.events {
		if evt.Type == sim.EventActionResult && evt.Entity == f.agent {
			found = true
		}
	}
	if !found {
		t.Error("no action_result event published")
	}
}

func TestSetAppearanceUpdatesComponent(t *testing.T) {
	f := newFixture(t)
	f.queue(t, "set_appearance", map[string]any{"description": "covered in dust"})
	f.tick(t)

	app, ok := world.Get[world.Appearance](f.store, world.CompAppearance, f.agent)
	if !ok || app.Description != "covered in dust" {
		t.Errorf("appearance = %+v", app)
	}
}
