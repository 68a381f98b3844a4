package sim

import (
	"fmt"
	"time"

	"github.com/nidhogg/vault-city/internal/world"
)

// Event is the envelope published on the bus and delivered to subscribers.
// State events describe the current state of an entity and may be
// deduplicated within a distribution window; non-state events are never
// dropped. Connection events bypass batching entirely.
type Event struct {
	Type      string         `json:"type"`
	Channel   string         `json:"channel"`
	Entity    world.EntityID `json:"entity,omitempty"`
	State     bool           `json:"state,omitempty"`
	Data      any            `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event types emitted by the runtime.
const (
	EventAgentState      = "agent_state"
	EventRoomState       = "room_state"
	EventStimulusCreated = "stimulus_created"
	EventStimulusRemoved = "stimulus_removed"
	EventChainCompleted  = "chain_completed"
	EventActionResult    = "action_result"
	EventTick            = "tick"
	EventConnection      = "connection"
	EventSchedulerFault  = "scheduler_fault"
)

// Wildcard channels receive every event of their kind.
const (
	RoomWildcard  = "room:*"
	AgentWildcard = "agent:*"
)

// RoomChannel names the per-room event channel.
func RoomChannel(id world.EntityID) string {
	return fmt.Sprintf("room:%d", id)
}

// AgentChannel names the per-agent event channel.
func AgentChannel(id world.EntityID) string {
	return fmt.Sprintf("agent:%d", id)
}

// Publisher is the write side of the event bus, passed to systems.
type Publisher interface {
	Publish(evt Event)
}
