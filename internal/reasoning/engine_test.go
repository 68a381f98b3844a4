package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nidhogg/vault-city/internal/attention"
	"github.com/nidhogg/vault-city/internal/oracle"
	"github.com/nidhogg/vault-city/internal/perception"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

type harness struct {
	store  *world.Store
	stim   *stimulus.Manager
	filter *perception.Filter
	attn   *attention.System
	mock   *oracle.Mock
	engine *Engine
	room   world.EntityID
	agent  world.EntityID
}

func newHarness(t *testing.T, goals []world.GoalItem) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := world.NewStore(world.NewRegistry(), logger)
	room, err := world.CreateRoom(store, "atrium", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	agent, err := world.SpawnAgent(store, world.AgentSeed{Name: "Nora", Room: room, Goals: goals})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	mgr := stimulus.NewManager(store, logger)
	pool := sim.NewPool(4, logger)
	filter := perception.NewFilter(store, mgr, pool, logger)
	bus := sim.NewBus(16, logger)
	attn := attention.NewSystem(store, filter, pool, bus, attention.DefaultConfig(), logger)
	mock := oracle.NewMock()
	engine := NewEngine(store, filter, attn, mock, pool, bus, DefaultConfig(), logger)
	return &harness{store: store, stim: mgr, filter: filter, attn: attn, mock: mock, engine: engine, room: room, agent: agent}
}

func (h *harness) tick(t *testing.T, now time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := h.filter.Tick(ctx, now); err != nil {
		t.Fatalf("perception tick: %v", err)
	}
	if err := h.attn.Tick(ctx, now); err != nil {
		t.Fatalf("attention tick: %v", err)
	}
	if err := h.engine.Tick(ctx, now); err != nil {
		t.Fatalf("reasoning tick: %v", err)
	}
}

func (h *harness) rc(t *testing.T) world.ReasoningContext {
	t.Helper()
	rc, ok := world.Get[world.ReasoningContext](h.store, world.CompReasoningContext, h.agent)
	if !ok {
		t.Fatal("reasoning context missing")
	}
	return rc
}

func stagesCalled(mock *oracle.Mock) []string {
	var out []string
	for _, c := range mock.Calls() {
		out = append(out, c.Stage)
	}
	return out
}

func TestFirstPassIsReflective(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t, time.Now())
	if rc := h.rc(t); rc.Mode != ModeReflective {
		t.Errorf("mode = %q, want reflective", rc.Mode)
	}
}

func TestReflectiveConfidentPassSkipsActionStages(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Respond(StageGoalAlignment, &oracle.Result{Content: "aligned", Confidence: 0.9})

	h.tick(t, time.Now())

	for _, stage := range stagesCalled(h.mock) {
		if stage == StageDecision || stage == StageOptionGeneration {
			t.Errorf("confident reflective pass still ran %s", stage)
		}
	}
	found := false
	for _, stage := range stagesCalled(h.mock) {
		if stage == StageMetaReflection {
			found = true
		}
	}
	if !found {
		t.Error("reflective pass skipped meta_reflection")
	}
}

func TestUncertainPassRunsFullChain(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Respond(StageGoalAlignment, &oracle.Result{Content: "unsure", Confidence: 0.4})

	h.tick(t, time.Now())

	want := []string{
		StagePerceptionAnalysis, StageSituationAssessment, StageGoalAlignment,
		StageOptionGeneration, StageEvaluation, StageDecision, StageMetaReflection,
	}
	got := stagesCalled(h.mock)
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExploratoryModeWithFewGoals(t *testing.T) {
	h := newHarness(t, []world.GoalItem{{Description: "find the archive", Priority: 0.5, Active: true}})
	now := time.Now()
	h.tick(t, now) // reflective baseline
	h.tick(t, now.Add(time.Second))
	if rc := h.rc(t); rc.Mode != ModeExploratory {
		t.Errorf("mode = %q, want exploratory", rc.Mode)
	}
}

func TestDecisionFillsPendingSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Respond(StageGoalAlignment, &oracle.Result{Content: "unsure", Confidence: 0.2})
	h.mock.Respond(StageDecision, &oracle.Result{
		Content:    "head for the exit",
		Confidence: 0.9,
		Action:     &oracle.Action{Tool: "move_to_room", Parameters: map[string]any{"room": "exit"}},
	})

	h.tick(t, time.Now())

	agent, _ := world.Get[world.Agent](h.store, world.CompAgent, h.agent)
	if agent.Pending == nil {
		t.Fatal("pending slot empty after decision")
	}
	if agent.Pending.Tool != "move_to_room" {
		t.Errorf("pending tool = %q", agent.Pending.Tool)
	}
}

func TestHighConfidenceStagesPromoteToWorkingMemory(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Respond(StageSituationAssessment, &oracle.Result{Content: "the vault door is open", Confidence: 0.95})
	h.mock.Respond(StageGoalAlignment, &oracle.Result{Content: "aligned", Confidence: 0.9})

	h.tick(t, time.Now())

	wm, _ := world.Get[world.WorkingMemory](h.store, world.CompWorkingMemory, h.agent)
	found := false
	for _, e := range wm.Entries {
		if e.Content == "the vault door is open" {
			found = true
		}
	}
	if !found {
		t.Error("high-confidence insight not promoted to working memory")
	}
}

func TestOracleFailureDegradesButCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Fail(StageSituationAssessment, errors.New("backend down"))

	h.tick(t, time.Now())

	thought, _ := world.Get[world.Thought](h.store, world.CompThought, h.agent)
	var degraded *world.ThoughtRecord
	for i := range thought.Records {
		if thought.Records[i].Stage == StageSituationAssessment {
			degraded = &thought.Records[i]
		}
	}
	if degraded == nil {
		t.Fatal("failed stage missing from thought history, chain aborted")
	}
	if degraded.Confidence != oracle.DegradedConfidence {
		t.Errorf("degraded confidence = %f", degraded.Confidence)
	}
}

func TestThoughtHistoryBounded(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Now()
	for i := 0; i < 15; i++ {
		h.tick(t, now.Add(time.Duration(i)*time.Second))
	}

	thought, _ := world.Get[world.Thought](h.store, world.CompThought, h.agent)
	chains := make(map[string]bool)
	for _, r := range thought.Records {
		chains[r.ChainID] = true
	}
	if len(chains) > DefaultConfig().HistoryChains {
		t.Errorf("history holds %d chains, want <= %d", len(chains), DefaultConfig().HistoryChains)
	}
}

func TestMetaEvaluationOnLowQuality(t *testing.T) {
	h := newHarness(t, nil)
	for _, stage := range []string{
		StagePerceptionAnalysis, StageSituationAssessment, StageGoalAlignment,
		StageOptionGeneration, StageEvaluation, StageDecision, StageMetaReflection,
	} {
		h.mock.Respond(stage, &oracle.Result{Content: "fog", Confidence: 0.2})
	}

	now := time.Now()
	for i := 0; i < 4; i++ {
		h.tick(t, now.Add(time.Duration(i)*time.Second))
	}

	rc := h.rc(t)
	if rc.ModeOverride != ModeDeliberative && rc.Mode != ModeDeliberative {
		t.Errorf("low quality did not force deliberative strategy: override=%q mode=%q", rc.ModeOverride, rc.Mode)
	}

	found := false
	for _, c := range h.mock.Calls() {
		if c.Stage == metaStage {
			found = true
		}
	}
	if !found {
		t.Error("meta-cognition never invoked despite low quality")
	}
}
