package stimulus

import (
	"errors"
	"testing"
	"time"

	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

func newTestWorld(t *testing.T) (*world.Store, *Manager, world.EntityID) {
	t.Helper()
	store := world.NewStore(world.NewRegistry(), zap.NewNop())
	roomID, err := world.CreateRoom(store, "atrium", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return store, NewManager(store, zap.NewNop()), roomID
}

func TestCreateValidation(t *testing.T) {
	_, mgr, roomID := newTestWorld(t)

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"bad type", CreateRequest{Type: "psychic", SourceKind: world.SourceAgent, Room: roomID}},
		{"bad source kind", CreateRequest{Type: world.StimulusVisual, SourceKind: "ghost", Room: roomID}},
		{"oversized content", CreateRequest{
			Type: world.StimulusVisual, SourceKind: world.SourceAgent, Room: roomID,
			Content: string(make([]byte, world.MaxStimulusContent+1)),
		}},
		{"intensity out of range", CreateRequest{
			Type: world.StimulusVisual, SourceKind: world.SourceAgent, Room: roomID, Intensity: 1.5,
		}},
	}
	for _, tc := range cases {
		_, err := mgr.Create(tc.req)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: got %v, want ValidationError", tc.name, err)
		}
	}

	// Unknown room is a not-found, not a validation failure.
	_, err := mgr.Create(CreateRequest{Type: world.StimulusVisual, SourceKind: world.SourceAgent, Room: 9999})
	if !errors.Is(err, world.ErrNotFound) {
		t.Errorf("unknown room: got %v, want ErrNotFound", err)
	}
}

func TestCreateEstablishesRelations(t *testing.T) {
	store, mgr, roomID := newTestWorld(t)
	agentID, err := world.SpawnAgent(store, world.AgentSeed{Name: "Nora", Room: roomID})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	id, err := mgr.Create(CreateRequest{
		Type:       world.StimulusAuditory,
		Source:     agentID,
		SourceKind: world.SourceAgent,
		Room:       roomID,
		Content:    "hello there",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if rels := store.RelationsFrom(world.RelStimulusInRoom, id); len(rels) != 1 || rels[0].Target != roomID {
		t.Errorf("room relation = %v", rels)
	}
	if rels := store.RelationsFrom(world.RelStimulusSource, id); len(rels) != 1 || rels[0].Target != agentID {
		t.Errorf("source relation = %v", rels)
	}
	st, _ := world.Get[world.Stimulus](store, world.CompStimulus, id)
	if st.Decay != DefaultDecay {
		t.Errorf("decay = %d, want default %d", st.Decay, DefaultDecay)
	}
	if st.CreatedAt.IsZero() {
		t.Error("expected server-assigned timestamp")
	}
}

func TestDecayLifecycle(t *testing.T) {
	store, mgr, roomID := newTestWorld(t)

	id, err := mgr.Create(CreateRequest{
		Type: world.StimulusVisual, SourceKind: world.SourceSystem, Room: roomID, Decay: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Pass 1: decay 2 -> 1, still present.
	mgr.DecayPass()
	mgr.Sweep()
	st, ok := world.Get[world.Stimulus](store, world.CompStimulus, id)
	if !ok {
		t.Fatal("stimulus gone after one pass")
	}
	if st.Decay != 1 {
		t.Errorf("decay = %d after one pass, want 1", st.Decay)
	}

	// Pass 2: decay 1 -> 0, tagged; sweep removes it.
	mgr.DecayPass()
	mgr.Sweep()
	if store.Alive(id) {
		t.Error("stimulus alive after reaching zero decay")
	}

	// Pass 3: stays absent.
	mgr.DecayPass()
	mgr.Sweep()
	if _, ok := world.Get[world.Stimulus](store, world.CompStimulus, id); ok {
		t.Error("stimulus reappeared")
	}
}

func TestGatherUnionsRoomAndAttribution(t *testing.T) {
	store, mgr, roomID := newTestWorld(t)
	other, _ := world.CreateRoom(store, "lab", "")
	agentID, err := world.SpawnAgent(store, world.AgentSeed{Name: "Nora", Room: roomID})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	inRoom, _ := mgr.Create(CreateRequest{
		Type: world.StimulusEnvironmental, SourceKind: world.SourceRoom, Source: roomID, Room: roomID, Content: "hum",
	})
	attributed, _ := mgr.Create(CreateRequest{
		Type: world.StimulusCognitive, SourceKind: world.SourceAgent, Source: agentID, Room: other, Content: "a thought",
	})
	elsewhere, _ := mgr.Create(CreateRequest{
		Type: world.StimulusVisual, SourceKind: world.SourceRoom, Source: other, Room: other, Content: "unseen",
	})

	got := make(map[world.EntityID]bool)
	for _, p := range mgr.GatherForAgent(agentID) {
		got[p.ID] = true
	}
	if !got[inRoom] || !got[attributed] {
		t.Errorf("gather missed expected stimuli: %v", got)
	}
	if got[elsewhere] {
		t.Error("gather returned a stimulus from an unrelated room")
	}
}

func TestPrioritizeDropsSelfVisualAndSorts(t *testing.T) {
	store, mgr, roomID := newTestWorld(t)
	agentID, err := world.SpawnAgent(store, world.AgentSeed{Name: "Nora", Room: roomID})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	selfVisual, _ := mgr.Create(CreateRequest{
		Type: world.StimulusVisual, SourceKind: world.SourceAgent, Source: agentID, Room: roomID, Content: "own reflection",
	})
	_, _ = mgr.Create(CreateRequest{
		Type: world.StimulusEnvironmental, SourceKind: world.SourceRoom, Source: roomID, Room: roomID, Content: "hum",
	})
	loud, _ := mgr.Create(CreateRequest{
		Type: world.StimulusAuditory, SourceKind: world.SourceSystem, Room: roomID, Content: "alarm",
	})

	ranked := mgr.Prioritize(mgr.GatherForAgent(agentID), agentID)
	for _, p := range ranked {
		if p.ID == selfVisual {
			t.Error("self-generated visual stimulus survived prioritization")
		}
	}
	if len(ranked) == 0 || ranked[0].ID != loud {
		t.Errorf("expected auditory stimulus ranked first, got %+v", ranked)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Priority > ranked[i-1].Priority {
			t.Errorf("priorities not descending: %+v", ranked)
		}
	}
}

func TestStalePriorityFloorsAtZero(t *testing.T) {
	store, mgr, roomID := newTestWorld(t)
	id, _ := mgr.Create(CreateRequest{
		Type: world.StimulusEnvironmental, SourceKind: world.SourceRoom, Source: roomID, Room: roomID, Content: "hum",
	})

	// Age the stimulus far past the priority window.
	st, _ := world.Get[world.Stimulus](store, world.CompStimulus, id)
	st.CreatedAt = time.Now().Add(-time.Minute)
	if err := store.Attach(world.CompStimulus, id, st); err != nil {
		t.Fatalf("age stimulus: %v", err)
	}

	ranked := mgr.Prioritize([]Percept{{ID: id, Stimulus: st}}, 0)
	if len(ranked) != 0 {
		t.Errorf("stale low-priority stimulus should fall below threshold, got %+v", ranked)
	}
}

func TestOrphanedStimulusTagged(t *testing.T) {
	store, mgr, roomID := newTestWorld(t)
	agentID, err := world.SpawnAgent(store, world.AgentSeed{Name: "Nora", Room: roomID})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	id, _ := mgr.Create(CreateRequest{
		Type: world.StimulusVisual, SourceKind: world.SourceSystem, Room: roomID, Content: "x",
	})

	// Sever the room membership; the stimulus is now structurally broken.
	store.RemoveRelation(world.RelStimulusInRoom, id, roomID)

	for _, p := range mgr.GatherForAgent(agentID) {
		if p.ID == id {
			t.Error("orphaned stimulus was returned")
		}
	}
	if !store.Has(world.CompCleanup, id) {
		t.Error("orphaned stimulus was not tagged for cleanup")
	}
	mgr.Sweep()
	if store.Alive(id) {
		t.Error("orphaned stimulus survived sweep")
	}
}
