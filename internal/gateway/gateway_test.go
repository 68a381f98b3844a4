package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

type fakeBridge struct {
	mu      sync.Mutex
	handler MessageHandler
	posts   []string
	closed  bool
}

func (f *fakeBridge) Platform() string                { return "fake" }
func (f *fakeBridge) Connect(_ context.Context) error { return nil }
func (f *fakeBridge) OnMessage(h MessageHandler)      { f.handler = h }
func (f *fakeBridge) Close() error                    { f.closed = true; return nil }
func (f *fakeBridge) Post(_ context.Context, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, content)
	return nil
}

func (f *fakeBridge) posted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func newTestGateway(t *testing.T) (*Gateway, *world.Store, *stimulus.Manager, world.EntityID) {
	t.Helper()
	logger := zap.NewNop()
	store := world.NewStore(world.NewRegistry(), logger)
	roomID, err := world.CreateRoom(store, "atrium", "quiet hum")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	bus := sim.NewBus(16, logger)
	mgr := stimulus.NewManager(store, logger)
	mgr.Notify(bus)
	return NewGateway(store, mgr, bus, logger), store, mgr, roomID
}

func TestInboundMessageBecomesStimulus(t *testing.T) {
	gw, store, _, roomID := newTestGateway(t)
	bridge := &fakeBridge{}
	gw.Register(bridge, "atrium")

	if err := gw.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer gw.Close()

	bridge.handler(&InboundMessage{
		Platform:  "fake",
		UserName:  "overseer",
		Content:   "status report",
		Timestamp: time.Now(),
	})

	var found bool
	for _, id := range store.EntitiesWith(world.CompStimulus) {
		st, _ := world.Get[world.Stimulus](store, world.CompStimulus, id)
		if st.Content == "overseer: status report" {
			found = true
			if st.SourceKind != world.SourceExternal {
				t.Errorf("source kind = %s, want external", st.SourceKind)
			}
			if st.Type != world.StimulusAuditory {
				t.Errorf("type = %s, want auditory", st.Type)
			}
			rels := store.RelationsFrom(world.RelStimulusInRoom, id)
			if len(rels) != 1 || rels[0].Target != roomID {
				t.Errorf("stimulus not in registered room")
			}
		}
	}
	if !found {
		t.Fatal("inbound message did not become a stimulus")
	}
}

func TestAgentSpeechMirroredOutbound(t *testing.T) {
	gw, _, mgr, roomID := newTestGateway(t)
	bridge := &fakeBridge{}
	gw.Register(bridge, "atrium")

	if err := gw.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer gw.Close()

	if _, err := mgr.Create(stimulus.CreateRequest{
		Type:       world.StimulusAuditory,
		Source:     42,
		SourceKind: world.SourceAgent,
		Room:       roomID,
		Content:    "Piper says: hello out there",
	}); err != nil {
		t.Fatalf("create stimulus: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if posts := bridge.posted(); len(posts) > 0 {
			if posts[0] != "Piper says: hello out there" {
				t.Fatalf("posted %q", posts[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("agent speech never mirrored to bridge")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestExternalStimuliNotEchoed(t *testing.T) {
	gw, _, mgr, roomID := newTestGateway(t)
	bridge := &fakeBridge{}
	gw.Register(bridge, "atrium")

	if err := gw.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer gw.Close()

	if _, err := mgr.Create(stimulus.CreateRequest{
		Type:       world.StimulusAuditory,
		SourceKind: world.SourceExternal,
		Room:       roomID,
		Content:    "overseer: do not echo me",
	}); err != nil {
		t.Fatalf("create stimulus: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if posts := bridge.posted(); len(posts) != 0 {
		t.Fatalf("external stimulus echoed back: %v", posts)
	}
}

func TestStartFailsOnUnknownRoom(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)
	gw.Register(&fakeBridge{}, "no-such-room")

	if err := gw.Start(context.Background()); err == nil {
		t.Fatal("expected error for unknown room")
	}
}

func TestCloseShutsDownBridges(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)
	bridge := &fakeBridge{}
	gw.Register(bridge, "atrium")

	if err := gw.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bridge.closed {
		t.Error("bridge not closed")
	}
}
