package action

import (
	"context"
	"time"

	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
)

// RegisterBuiltins adds the standard action modules to a registry.
func RegisterBuiltins(r *Registry, store *world.Store, stim *stimulus.Manager) {
	r.Register(&moveModule{store: store})
	r.Register(&sayModule{store: store, stim: stim})
	r.Register(&emoteModule{store: store, stim: stim})
	r.Register(&appearanceModule{store: store})
	r.Register(&waitModule{})
}

type moveModule struct {
	store *world.Store
}

func (m *moveModule) Name() string        { return "move_to_room" }
func (m *moveModule) Description() string { return "Move to a different room by name." }
func (m *moveModule) ParameterSchema() map[string]string {
	return map[string]string{"room": "name of the destination room"}
}

func (m *moveModule) Execute(_ context.Context, agentID world.EntityID, params map[string]any) Result {
	name, ok := stringParam(params, "room")
	if !ok {
		return failure("move_to_room requires a room parameter")
	}
	var target world.EntityID
	for _, id := range m.store.EntitiesWith(world.CompRoom) {
		room, _ := world.Get[world.Room](m.store, world.CompRoom, id)
		if room.Name == name {
			target = id
			break
		}
	}
	if target == 0 {
		return failure("unknown room %q", name)
	}
	if err := world.MoveAgent(m.store, agentID, target); err != nil {
		return failure("move failed: %v", err)
	}
	res := success("moved to %s", name)
	res.Data = map[string]any{"room": uint64(target)}
	return res
}

type sayModule struct {
	store *world.Store
	stim  *stimulus.Manager
}

func (m *sayModule) Name() string        { return "say" }
func (m *sayModule) Description() string { return "Say something aloud in the current room." }
func (m *sayModule) ParameterSchema() map[string]string {
	return map[string]string{"message": "what to say"}
}

func (m *sayModule) Execute(_ context.Context, agentID world.EntityID, params map[string]any) Result {
	message, ok := stringParam(params, "message")
	if !ok {
		return failure("say requires a message parameter")
	}
	roomID, ok := world.RoomOf(m.store, agentID)
	if !ok {
		return failure("agent is not in a room")
	}
	agent, _ := world.Get[world.Agent](m.store, world.CompAgent, agentID)
	_, err := m.stim.Create(stimulus.CreateRequest{
		Type:       world.StimulusAuditory,
		Source:     agentID,
		SourceKind: world.SourceAgent,
		Room:       roomID,
		Content:    agent.Name + " says: " + message,
	})
	if err != nil {
		return failure("say failed: %v", err)
	}
	return success("said %q", message)
}

type emoteModule struct {
	store *world.Store
	stim  *stimulus.Manager
}

func (m *emoteModule) Name() string        { return "emote" }
func (m *emoteModule) Description() string { return "Perform a visible expression or gesture." }
func (m *emoteModule) ParameterSchema() map[string]string {
	return map[string]string{"expression": "the gesture or expression to perform"}
}

func (m *emoteModule) Execute(_ context.Context, agentID world.EntityID, params map[string]any) Result {
	expression, ok := stringParam(params, "expression")
	if !ok {
		return failure("emote requires an expression parameter")
	}
	roomID, ok := world.RoomOf(m.store, agentID)
	if !ok {
		return failure("agent is not in a room")
	}
	agent, _ := world.Get[world.Agent](m.store, world.CompAgent, agentID)
	_, err := m.stim.Create(stimulus.CreateRequest{
		Type:       world.StimulusVisual,
		Source:     agentID,
		SourceKind: world.SourceAgent,
		Room:       roomID,
		Content:    agent.Name + " " + expression,
	})
	if err != nil {
		return failure("emote failed: %v", err)
	}
	return success("emoted %q", expression)
}

type appearanceModule struct {
	store *world.Store
}

func (m *appearanceModule) Name() string        { return "set_appearance" }
func (m *appearanceModule) Description() string { return "Change how the agent looks to others." }
func (m *appearanceModule) ParameterSchema() map[string]string {
	return map[string]string{"description": "the new appearance"}
}

func (m *appearanceModule) Execute(_ context.Context, agentID world.EntityID, params map[string]any) Result {
	description, ok := stringParam(params, "description")
	if !ok {
		return failure("set_appearance requires a description parameter")
	}
	app := world.Appearance{Description: description, ChangedAt: time.Now()}
	if err := m.store.Attach(world.CompAppearance, agentID, app); err != nil {
		return failure("set_appearance failed: %v", err)
	}
	return success("appearance updated")
}

type waitModule struct{}

func (m *waitModule) Name() string        { return "wait" }
func (m *waitModule) Description() string { return "Do nothing this tick." }
func (m *waitModule) ParameterSchema() map[string]string {
	return map[string]string{"reason": "optional note on why"}
}

func (m *waitModule) Execute(_ context.Context, _ world.EntityID, params map[string]any) Result {
	if reason, ok := stringParam(params, "reason"); ok {
		return success("waiting: %s", reason)
	}
	return success("waiting")
}
