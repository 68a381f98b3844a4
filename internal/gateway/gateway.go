// Package gateway bridges world rooms to external chat platforms. Each
// bridge mirrors one room's agent activity outward and injects platform
// messages back as stimuli.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// InboundMessage is a platform chat message headed into the world.
type InboundMessage struct {
	Platform  string
	UserName  string
	Content   string
	Timestamp time.Time
}

// MessageHandler receives inbound platform messages.
type MessageHandler func(*InboundMessage)

// Bridge is one platform connection bound to a single world room.
type Bridge interface {
	Platform() string
	Connect(ctx context.Context) error
	OnMessage(h MessageHandler)
	Post(ctx context.Context, content string) error
	Close() error
}

type binding struct {
	bridge Bridge
	room   string
	roomID world.EntityID
	sub    *sim.Subscription
}

// Gateway manages the configured bridges.
type Gateway struct {
	store   *world.Store
	stim    *stimulus.Manager
	bus     *sim.Bus
	mu      sync.Mutex
	bridges []*binding
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewGateway creates a gateway over the world.
func NewGateway(store *world.Store, stim *stimulus.Manager, bus *sim.Bus, logger *zap.Logger) *Gateway {
	return &Gateway{store: store, stim: stim, bus: bus, logger: logger}
}

// Register binds a bridge to a room by name. The room must exist before
// Start is called.
func (g *Gateway) Register(bridge Bridge, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bridges = append(g.bridges, &binding{bridge: bridge, room: room})
	g.logger.Info("bridge registered",
		zap.String("platform", bridge.Platform()),
		zap.String("room", room))
}

// Start connects every bridge and begins mirroring in both directions.
func (g *Gateway) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.bridges {
		roomID, ok := g.roomByName(b.room)
		if !ok {
			cancel()
			return fmt.Errorf("bridge %s: room %q: %w", b.bridge.Platform(), b.room, world.ErrNotFound)
		}
		b.roomID = roomID

		b.bridge.OnMessage(g.inboundHandler(b))
		if err := b.bridge.Connect(ctx); err != nil {
			cancel()
			return fmt.Errorf("connect %s: %w", b.bridge.Platform(), err)
		}

		b.sub = g.bus.Subscribe(sim.RoomChannel(roomID))
		go g.mirror(ctx, b)
		g.logger.Info("bridge connected",
			zap.String("platform", b.bridge.Platform()),
			zap.String("room", b.room))
	}
	return nil
}

// inboundHandler injects one bridge's platform messages as auditory room
// stimuli from an external source.
func (g *Gateway) inboundHandler(b *binding) MessageHandler {
	return func(msg *InboundMessage) {
		content := msg.Content
		if msg.UserName != "" {
			content = msg.UserName + ": " + msg.Content
		}
		_, err := g.stim.Create(stimulus.CreateRequest{
			Type:       world.StimulusAuditory,
			SourceKind: world.SourceExternal,
			Room:       b.roomID,
			Content:    content,
		})
		if err != nil {
			g.logger.Warn("inbound message rejected",
				zap.String("platform", msg.Platform), zap.Error(err))
		}
	}
}

// mirror forwards agent activity in the bound room out to the platform.
// External-source stimuli are skipped so bridged messages never echo.
func (g *Gateway) mirror(ctx context.Context, b *binding) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.sub.C():
			if !ok {
				return
			}
			if evt.Type != sim.EventStimulusCreated {
				continue
			}
			st, ok := evt.Data.(world.Stimulus)
			if !ok || st.SourceKind != world.SourceAgent {
				continue
			}
			if err := b.bridge.Post(ctx, st.Content); err != nil {
				g.logger.Warn("outbound mirror failed",
					zap.String("platform", b.bridge.Platform()), zap.Error(err))
			}
		}
	}
}

// Close stops mirroring and shuts down every bridge.
func (g *Gateway) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.bridges {
		if b.sub != nil {
			g.bus.Unsubscribe(b.sub)
		}
		if err := b.bridge.Close(); err != nil {
			g.logger.Warn("bridge close failed",
				zap.String("platform", b.bridge.Platform()), zap.Error(err))
		}
	}
	return nil
}

func (g *Gateway) roomByName(name string) (world.EntityID, bool) {
	for _, id := range g.store.EntitiesWith(world.CompRoom) {
		room, _ := world.Get[world.Room](g.store, world.CompRoom, id)
		if room.Name == name {
			return id, true
		}
	}
	return 0, false
}
