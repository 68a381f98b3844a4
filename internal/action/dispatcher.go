package action

import (
	"context"
	"time"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// MaxExperience bounds each agent's action outcome log.
const MaxExperience = 50

// Dispatcher executes each agent's pending action once per tick. Actions
// mutate shared relations, so they run serially in ascending entity order
// rather than fanning out.
type Dispatcher struct {
	store    *world.Store
	registry *Registry
	pub      sim.Publisher
	logger   *zap.Logger
}

// NewDispatcher creates the action stage.
func NewDispatcher(store *world.Store, registry *Registry, pub sim.Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, registry: registry, pub: pub, logger: logger}
}

// Name implements sim.System.
func (d *Dispatcher) Name() string { return "action" }

// Tick implements sim.System.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) error {
	for _, id := range d.store.EntitiesWith(world.CompAgent) {
		agent, ok := world.Get[world.Agent](d.store, world.CompAgent, id)
		if !ok || agent.Pending == nil {
			continue
		}
		pending := *agent.Pending
		result := d.Execute(ctx, pending.Tool, id, pending.Parameters)

		// The pending slot clears whether the action succeeded or not.
		agent.Pending = nil
		agent.Experience = append(agent.Experience, world.Experience{
			Tool:      pending.Tool,
			Success:   result.Success,
			Result:    result.Message,
			Timestamp: result.Timestamp,
		})
		if len(agent.Experience) > MaxExperience {
			agent.Experience = agent.Experience[len(agent.Experience)-MaxExperience:]
		}
		if err := d.store.Attach(world.CompAgent, id, agent); err != nil {
			d.logger.Warn("experience write failed", zap.Uint64("agent", uint64(id)), zap.Error(err))
		}

		d.publish(id, pending.Tool, result)
	}
	return nil
}

// Execute runs one tool by name. An unknown tool is a reported failure,
// not a fault.
func (d *Dispatcher) Execute(ctx context.Context, tool string, agentID world.EntityID, params map[string]any) Result {
	module, ok := d.registry.Lookup(tool)
	if !ok {
		d.logger.Debug("unknown action requested",
			zap.Uint64("agent", uint64(agentID)), zap.String("tool", tool))
		return failure("unknown action %q", tool)
	}
	result := module.Execute(ctx, agentID, params)
	d.logger.Debug("action executed",
		zap.Uint64("agent", uint64(agentID)),
		zap.String("tool", tool),
		zap.Bool("success", result.Success))
	return result
}

func (d *Dispatcher) publish(id world.EntityID, tool string, result Result) {
	d.pub.Publish(sim.Event{
		Type:    sim.EventActionResult,
		Channel: sim.AgentChannel(id),
		Entity:  id,
		Data: map[string]any{
			"tool":    tool,
			"success": result.Success,
			"message": result.Message,
		},
		Timestamp: result.Timestamp,
	})
	if roomID, ok := world.RoomOf(d.store, id); ok && result.Success {
		d.pub.Publish(sim.Event{
			Type:      sim.EventRoomState,
			Channel:   sim.RoomChannel(roomID),
			Entity:    roomID,
			State:     true,
			Timestamp: time.Now(),
		})
	}
}
