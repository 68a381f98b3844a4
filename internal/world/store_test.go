package world

import (
	"testing"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewRegistry(), zap.NewNop())
}

func TestAttachAndGet(t *testing.T) {
	s := newTestStore(t)
	id := s.CreateEntity()

	if err := s.Attach(CompRoom, id, Room{Name: "atrium"}); err != nil {
		t.Fatalf("attach room: %v", err)
	}
	room, ok := Get[Room](s, CompRoom, id)
	if !ok {
		t.Fatal("expected room component")
	}
	if room.Name != "atrium" {
		t.Errorf("got name %q, want atrium", room.Name)
	}
}

func TestAttachValidation(t *testing.T) {
	s := newTestStore(t)
	id := s.CreateEntity()

	if err := s.Attach(CompRoom, id, Room{}); err == nil {
		t.Error("expected error for unnamed room")
	}
	if err := s.Attach(CompStimulus, id, Stimulus{Type: "psychic", SourceKind: SourceAgent}); err == nil {
		t.Error("expected error for invalid stimulus type")
	}
	if err := s.Attach(CompAgent, 999, Agent{Name: "ghost"}); err == nil {
		t.Error("expected error for dead entity")
	}
}

func TestDestroyEntityRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	roomID, _ := CreateRoom(s, "bar", "")
	agentID, err := SpawnAgent(s, AgentSeed{Name: "Nora", Room: roomID})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	s.DestroyEntity(agentID)

	if s.Alive(agentID) {
		t.Error("entity still alive after destroy")
	}
	if _, ok := Get[Agent](s, CompAgent, agentID); ok {
		t.Error("agent component survived destroy")
	}
	if occ := Occupants(s, roomID); len(occ) != 0 {
		t.Errorf("room still has %d occupants", len(occ))
	}
}

func TestExclusiveRelationReplaces(t *testing.T) {
	s := newTestStore(t)
	bar, _ := CreateRoom(s, "bar", "")
	lab, _ := CreateRoom(s, "lab", "")
	agentID, err := SpawnAgent(s, AgentSeed{Name: "Nora", Room: bar})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if err := MoveAgent(s, agentID, lab); err != nil {
		t.Fatalf("move: %v", err)
	}

	// The agent must appear in exactly one occupant set.
	if got, _ := RoomOf(s, agentID); got != lab {
		t.Errorf("agent in room %d, want %d", got, lab)
	}
	if occ := Occupants(s, bar); len(occ) != 0 {
		t.Errorf("old room still lists %d occupants", len(occ))
	}
	if occ := Occupants(s, lab); len(occ) != 1 {
		t.Errorf("new room lists %d occupants, want 1", len(occ))
	}
	if rels := s.RelationsFrom(RelOccupies, agentID); len(rels) != 1 {
		t.Errorf("agent holds %d occupies relations, want 1", len(rels))
	}
}

func TestEntitiesWithIsOrdered(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		id := s.CreateEntity()
		_ = s.Attach(CompCleanup, id, Cleanup{})
	}
	ids := s.EntitiesWith(CompCleanup)
	if len(ids) != 5 {
		t.Fatalf("got %d entities, want 5", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not ascending: %v", ids)
		}
	}
}

func TestSnapshotRoom(t *testing.T) {
	s := newTestStore(t)
	roomID, _ := CreateRoom(s, "atrium", "hum of vending machines")
	agentID, err := SpawnAgent(s, AgentSeed{Name: "Nora", Room: roomID})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	snap, ok := SnapshotRoom(s, roomID)
	if !ok {
		t.Fatal("expected room snapshot")
	}
	if snap.Name != "atrium" {
		t.Errorf("got name %q", snap.Name)
	}
	if len(snap.Occupants) != 1 || snap.Occupants[0] != agentID {
		t.Errorf("occupants = %v, want [%d]", snap.Occupants, agentID)
	}

	if _, ok := SnapshotRoom(s, agentID); ok {
		t.Error("agent entity must not snapshot as a room")
	}
}
