package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// clientMessage is anything a subscriber sends over the socket.
type clientMessage struct {
	Type    string `json:"type"` // subscribe|unsubscribe|START|STOP|RESET|CHAT
	Channel string `json:"channel,omitempty"`
	Room    uint64 `json:"room,omitempty"`
	Agent   uint64 `json:"agent,omitempty"`
	Content string `json:"content,omitempty"`
}

// serverMessage is the envelope pushed to subscribers.
type serverMessage struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// serveWS upgrades the connection and runs the subscriber protocol: the
// client subscribes to room/agent channels, receives a full snapshot per
// subscription, then batched incremental events.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	batcher := sim.NewBatcher(sub.C(), sim.DefaultBatcherConfig())
	go batcher.Run(ctx)
	go h.pushBatches(ctx, conn, batcher)

	if err := wsjson.Write(ctx, conn, serverMessage{
		Type:      sim.EventConnection,
		Data:      map[string]string{"status": "connected"},
		Timestamp: time.Now(),
	}); err != nil {
		return
	}

	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		h.handleClientMessage(ctx, conn, sub, msg)
	}
}

// pushBatches writes batched events to the socket until the context ends.
func (h *Handler) pushBatches(ctx context.Context, conn *websocket.Conn, batcher *sim.Batcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batcher.Batches():
			if !ok {
				return
			}
			for _, evt := range batch {
				msg := serverMessage{
					Type:      evt.Type,
					Channel:   evt.Channel,
					Data:      evt.Data,
					Timestamp: evt.Timestamp,
				}
				if err := wsjson.Write(ctx, conn, msg); err != nil {
					return
				}
			}
		}
	}
}

func (h *Handler) handleClientMessage(ctx context.Context, conn *websocket.Conn, sub *sim.Subscription, msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		if !validChannel(msg.Channel) {
			h.replyError(ctx, conn, "invalid channel")
			return
		}
		h.bus.Add(sub, msg.Channel)
		h.sendSnapshot(ctx, conn, msg.Channel)
	case "unsubscribe":
		h.bus.Remove(sub, msg.Channel)
	case "START":
		h.sched.Start()
		h.replyStatus(ctx, conn, "started")
	case "STOP":
		h.sched.Stop()
		h.replyStatus(ctx, conn, "stopped")
	case "RESET":
		h.sched.Reset()
		h.replyStatus(ctx, conn, "reset")
	case "CHAT":
		h.injectChat(ctx, conn, msg)
	default:
		h.replyError(ctx, conn, "unknown message type")
	}
}

// sendSnapshot pushes the full current state of a newly subscribed channel.
func (h *Handler) sendSnapshot(ctx context.Context, conn *websocket.Conn, channel string) {
	var data any
	switch {
	case strings.HasPrefix(channel, "room:"):
		if id, ok := channelEntity(channel); ok {
			if snap, ok := world.SnapshotRoom(h.store, id); ok {
				data = snap
			}
		}
	case strings.HasPrefix(channel, "agent:"):
		if id, ok := channelEntity(channel); ok {
			if snap, ok := world.SnapshotAgent(h.store, id); ok {
				data = snap
			}
		}
	}
	wsjson.Write(ctx, conn, serverMessage{
		Type:      "snapshot",
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// injectChat delivers external chat either as a room stimulus everyone can
// hear or as direct input to a single agent's next reasoning pass.
func (h *Handler) injectChat(ctx context.Context, conn *websocket.Conn, msg clientMessage) {
	if msg.Content == "" {
		h.replyError(ctx, conn, "chat content is empty")
		return
	}
	switch {
	case msg.Agent != 0:
		id := world.EntityID(msg.Agent)
		rc, ok := world.Get[world.ReasoningContext](h.store, world.CompReasoningContext, id)
		if !ok {
			h.replyError(ctx, conn, "agent not found")
			return
		}
		rc.DirectInput = append(rc.DirectInput, msg.Content)
		if err := h.store.Attach(world.CompReasoningContext, id, rc); err != nil {
			h.replyError(ctx, conn, err.Error())
			return
		}
		h.replyStatus(ctx, conn, "delivered")
	case msg.Room != 0:
		_, err := h.stim.Create(stimulus.CreateRequest{
			Type:       world.StimulusAuditory,
			SourceKind: world.SourceExternal,
			Room:       world.EntityID(msg.Room),
			Content:    msg.Content,
		})
		if err != nil {
			h.replyError(ctx, conn, err.Error())
			return
		}
		h.replyStatus(ctx, conn, "delivered")
	default:
		h.replyError(ctx, conn, "chat needs a room or agent target")
	}
}

func (h *Handler) replyStatus(ctx context.Context, conn *websocket.Conn, status string) {
	wsjson.Write(ctx, conn, serverMessage{
		Type:      "status",
		Data:      map[string]string{"status": status},
		Timestamp: time.Now(),
	})
}

func (h *Handler) replyError(ctx context.Context, conn *websocket.Conn, reason string) {
	wsjson.Write(ctx, conn, serverMessage{
		Type:      "error",
		Data:      map[string]string{"error": reason},
		Timestamp: time.Now(),
	})
}

func validChannel(channel string) bool {
	if channel == sim.RoomWildcard || channel == sim.AgentWildcard {
		return true
	}
	if strings.HasPrefix(channel, "room:") || strings.HasPrefix(channel, "agent:") {
		_, ok := channelEntity(channel)
		return ok
	}
	return false
}

func channelEntity(channel string) (world.EntityID, bool) {
	_, raw, ok := strings.Cut(channel, ":")
	if !ok || raw == "*" {
		return 0, false
	}
	var id uint64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, false
		}
		id = id*10 + uint64(c-'0')
	}
	if id == 0 {
		return 0, false
	}
	return world.EntityID(id), true
}
