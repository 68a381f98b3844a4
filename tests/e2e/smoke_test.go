//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/vault-city/internal/memory"
	"github.com/nidhogg/vault-city/internal/oracle"
	"github.com/nidhogg/vault-city/internal/reasoning"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/sink"
	pgstore "github.com/nidhogg/vault-city/internal/store"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
)

// Package-level shared state, set by TestMain.
var (
	testLogger   *zap.Logger
	testPgDSN    string
	testRedisURL string
	testNeo4jURI string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()
	testPgDSN = pgDSN

	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()
	testRedisURL = redisURL

	neo4jURI, neo4jCleanup, err := startNeo4j(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo4j: %v\n", err)
		os.Exit(1)
	}
	defer neo4jCleanup()
	testNeo4jURI = neo4jURI

	os.Exit(m.Run())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// TestAgentSpeaksAndIsHeard drives a full loop through the REST API: two
// agents share a room, one is scripted to speak, the other perceives the
// utterance on the following tick.
func TestAgentSpeaksAndIsHeard(t *testing.T) {
	tw := newTestWorld(testLogger)
	defer tw.close()
	ctx := context.Background()

	resp := postJSON(t, tw.server.URL+"/api/rooms", map[string]string{
		"name": "atrium", "ambience": "a low hum",
	})
	room := decode[world.RoomSnapshot](t, resp)

	resp = postJSON(t, tw.server.URL+"/api/agents", map[string]string{
		"name": "Piper", "bio": "a reporter", "room": "atrium",
	})
	speaker := decode[world.AgentSnapshot](t, resp)

	resp = postJSON(t, tw.server.URL+"/api/agents", map[string]string{
		"name": "Sturges", "bio": "a tinkerer", "room": "atrium",
	})
	decode[world.AgentSnapshot](t, resp)

	tw.mock.Respond(reasoning.StageDecision, &oracle.Result{
		Content:    "greet the room",
		Confidence: 0.9,
		Action: &oracle.Action{
			Tool:       "say",
			Parameters: map[string]any{"message": "hello vault"},
		},
	})

	// Tick 1 reasons, decides and dispatches the say; tick 2 lets the
	// listener perceive the utterance before decay sweeps it away.
	if err := tw.step(ctx, 2); err != nil {
		t.Fatalf("step: %v", err)
	}

	// Both agents run the same scripted oracle, so look for the named
	// speaker's utterance specifically.
	var heard bool
	for _, id := range tw.store.EntitiesWith(world.CompStimulus) {
		st, _ := world.Get[world.Stimulus](tw.store, world.CompStimulus, id)
		if strings.Contains(st.Content, "Piper says: hello vault") {
			heard = true
			if st.SourceID != speaker.ID {
				t.Errorf("stimulus source = %d, want %d", st.SourceID, speaker.ID)
			}
		}
	}
	if !heard {
		t.Fatal("scripted speech never became a room stimulus")
	}

	resp, err := http.Get(tw.server.URL + fmt.Sprintf("/api/rooms/%d", room.ID))
	if err != nil {
		t.Fatalf("GET room: %v", err)
	}
	snap := decode[world.RoomSnapshot](t, resp)
	if len(snap.Occupants) != 2 {
		t.Errorf("occupants = %d, want 2", len(snap.Occupants))
	}
}

// TestThoughtsPersistedToPostgres verifies the tick recorder writes the
// reasoning trace through to the database.
func TestThoughtsPersistedToPostgres(t *testing.T) {
	ctx := context.Background()
	pg, err := pgstore.New(testPgDSN, testLogger)
	if err != nil {
		t.Fatalf("pg store: %v", err)
	}
	defer pg.Close()
	if err := pg.Init(ctx); err != nil {
		t.Fatalf("pg init: %v", err)
	}

	tw := newTestWorld(testLogger, func(ws *world.Store, stim *stimulus.Manager) sim.System {
		return pgstore.NewRecorder(pg, ws, stim, 1)
	})
	defer tw.close()

	postJSON(t, tw.server.URL+"/api/rooms", map[string]string{"name": "atrium"}).Body.Close()
	postJSON(t, tw.server.URL+"/api/agents", map[string]string{
		"name": "Piper", "bio": "a reporter", "room": "atrium",
	}).Body.Close()

	if err := tw.step(ctx, 2); err != nil {
		t.Fatalf("step: %v", err)
	}

	records, err := pg.RecentThoughts(ctx, "Piper", 50)
	if err != nil {
		t.Fatalf("recent thoughts: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("no thoughts persisted")
	}
}

// TestEventsMirroredToRedis attaches the stream sink and checks that tick
// events land in the Redis stream.
func TestEventsMirroredToRedis(t *testing.T) {
	ctx := context.Background()
	stream := "vault:test:events"

	events, err := sink.New(testRedisURL, stream, testLogger)
	if err != nil {
		t.Fatalf("redis sink: %v", err)
	}

	tw := newTestWorld(testLogger)
	defer tw.close()
	events.Attach(tw.bus)
	defer events.Close(tw.bus)

	postJSON(t, tw.server.URL+"/api/rooms", map[string]string{"name": "atrium"}).Body.Close()
	postJSON(t, tw.server.URL+"/api/agents", map[string]string{
		"name": "Piper", "bio": "a reporter", "room": "atrium",
	}).Body.Close()

	if err := tw.step(ctx, 2); err != nil {
		t.Fatalf("step: %v", err)
	}

	opts, err := redis.ParseURL(testRedisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		n, err := rdb.XLen(ctx, stream).Result()
		if err == nil && n > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("stream %s still empty (err=%v)", stream, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// TestInsightArchiveRoundTrip exercises the Neo4j archive directly:
// store, recall, then decay-prune.
func TestInsightArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	archive, err := memory.NewArchive(testNeo4jURI, "", "", testLogger)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	defer archive.Close(ctx)

	if err := archive.ArchiveInsight(ctx, &memory.Insight{
		Agent:      "Piper",
		Content:    "the recycler fails every third day",
		Importance: 0.9,
	}); err != nil {
		t.Fatalf("archive insight: %v", err)
	}
	if err := archive.ArchiveInsight(ctx, &memory.Insight{
		Agent:      "Piper",
		Content:    "sturges hoards spare fuses",
		Importance: 0.4,
	}); err != nil {
		t.Fatalf("archive insight: %v", err)
	}

	insights, err := archive.RecallInsights(ctx, "Piper", 10)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("recalled %d insights, want 2", len(insights))
	}
	if insights[0].Content != "the recycler fails every third day" {
		t.Errorf("recall order wrong, got %q first", insights[0].Content)
	}

	// An aggressive decay floor prunes everything immediately.
	pruned, err := archive.DecaySweep(ctx, memory.DecayConfig{
		HalfLifeHours: 1,
		MinActivation: 1.0,
	})
	if err != nil {
		t.Fatalf("decay sweep: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned %d, want 2", pruned)
	}
}

// TestWebSocketFeed subscribes over the socket and expects tick events.
func TestWebSocketFeed(t *testing.T) {
	tw := newTestWorld(testLogger)
	defer tw.close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp := postJSON(t, tw.server.URL+"/api/rooms", map[string]string{"name": "atrium"})
	room := decode[world.RoomSnapshot](t, resp)

	wsURL := "ws" + strings.TrimPrefix(tw.server.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := wsjson.Write(ctx, conn, map[string]string{
		"type": "subscribe", "channel": "room:*",
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Wait for the subscription snapshot so the stimulus cannot race the
	// channel registration.
	for {
		var msg map[string]any
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg["type"] == "snapshot" {
			break
		}
	}

	if _, err := tw.stim.Create(stimulus.CreateRequest{
		Type:       world.StimulusAuditory,
		SourceKind: world.SourceExternal,
		Room:       room.ID,
		Content:    "overseer on deck",
	}); err != nil {
		t.Fatalf("create stimulus: %v", err)
	}

	for {
		var msg map[string]any
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg["type"] == "stimulus_created" {
			return
		}
	}
}
