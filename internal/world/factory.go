package world

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AgentSeed describes a resident to spawn.
type AgentSeed struct {
	Name  string     `json:"name"`
	Bio   string     `json:"bio"`
	Goals []GoalItem `json:"goals,omitempty"`
	Room  EntityID   `json:"room"`
}

// SpawnAgent creates an agent entity with its full component set and places
// it in the given room.
func SpawnAgent(s *Store, seed AgentSeed) (EntityID, error) {
	if _, ok := Get[Room](s, CompRoom, seed.Room); !ok {
		return 0, fmt.Errorf("spawn agent %q: room %d: %w", seed.Name, seed.Room, ErrNotFound)
	}

	id := s.CreateEntity()
	now := time.Now()
	if err := s.Attach(CompAgent, id, Agent{Name: seed.Name, Bio: seed.Bio}); err != nil {
		s.DestroyEntity(id)
		return 0, err
	}
	_ = s.Attach(CompGoal, id, Goal{Items: seed.Goals})
	_ = s.Attach(CompWorkingMemory, id, WorkingMemory{})
	_ = s.Attach(CompReasoningContext, id, ReasoningContext{Mode: "reactive", MinStages: 3})
	_ = s.Attach(CompAttention, id, Attention{Mode: "wandering", UpdatedAt: now})
	_ = s.Attach(CompThought, id, Thought{})

	if err := s.AddRelation(RelOccupies, Relation{Source: id, Target: seed.Room, Intensity: 1.0, Since: now}); err != nil {
		s.DestroyEntity(id)
		return 0, err
	}
	s.logger.Info("agent spawned",
		zap.Uint64("entity", uint64(id)),
		zap.String("name", seed.Name),
		zap.Uint64("room", uint64(seed.Room)))
	return id, nil
}

// CreateRoom creates a room entity.
func CreateRoom(s *Store, name, ambience string) (EntityID, error) {
	id := s.CreateEntity()
	if err := s.Attach(CompRoom, id, Room{Name: name, Ambience: ambience}); err != nil {
		s.DestroyEntity(id)
		return 0, err
	}
	s.logger.Info("room created", zap.Uint64("entity", uint64(id)), zap.String("name", name))
	return id, nil
}

// MoveAgent relocates an agent. The occupies relation is exclusive, so the
// prior room membership is replaced atomically.
func MoveAgent(s *Store, agentID, roomID EntityID) error {
	if _, ok := Get[Room](s, CompRoom, roomID); !ok {
		return fmt.Errorf("move agent %d: room %d: %w", agentID, roomID, ErrNotFound)
	}
	return s.AddRelation(RelOccupies, Relation{Source: agentID, Target: roomID, Intensity: 1.0, Since: time.Now()})
}

// RoomOf returns the room an agent currently occupies.
func RoomOf(s *Store, agentID EntityID) (EntityID, bool) {
	return s.FirstTarget(RelOccupies, agentID)
}

// Occupants returns the agents currently in a room, ascending by id.
func Occupants(s *Store, roomID EntityID) []EntityID {
	rels := s.RelationsTo(RelOccupies, roomID)
	ids := make([]EntityID, 0, len(rels))
	for _, r := range rels {
		ids = append(ids, r.Source)
	}
	return ids
}
