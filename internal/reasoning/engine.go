package reasoning

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/vault-city/internal/attention"
	"github.com/nidhogg/vault-city/internal/oracle"
	"github.com/nidhogg/vault-city/internal/perception"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// Config tunes the reasoning engine.
type Config struct {
	HistoryChains     int           // reasoning threads kept per agent
	MemoryLimit       int           // working memory entries kept per agent
	PromoteConfidence float64       // stages above this become insights
	DeepPassEvery     time.Duration // reflective mode cadence
	MetaEvalEvery     time.Duration // meta-cognition cadence
	QualitySamples    int           // quality history length
}

// DefaultConfig returns the standard reasoning tuning.
func DefaultConfig() Config {
	return Config{
		HistoryChains:     10,
		MemoryLimit:       20,
		PromoteConfidence: 0.8,
		DeepPassEvery:     5 * time.Minute,
		MetaEvalEvery:     10 * time.Minute,
		QualitySamples:    10,
	}
}

// Engine runs each agent's staged reasoning chain once per tick. Oracle
// calls fan out per agent; component writes happen serially at the fan-in
// barrier in ascending entity order.
type Engine struct {
	store  *world.Store
	filter *perception.Filter
	attn   *attention.System
	orc    oracle.Oracle
	pool   *sim.Pool
	pub    sim.Publisher
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates the reasoning stage.
func NewEngine(store *world.Store, filter *perception.Filter, attn *attention.System, orc oracle.Oracle, pool *sim.Pool, pub sim.Publisher, cfg Config, logger *zap.Logger) *Engine {
	if cfg.HistoryChains <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:  store,
		filter: filter,
		attn:   attn,
		orc:    orc,
		pool:   pool,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
	}
}

// Name implements sim.System.
func (e *Engine) Name() string { return "reasoning" }

// outcome is everything a chain wants written back for one agent.
type outcome struct {
	chain      *Chain
	rc         world.ReasoningContext
	thought    world.Thought
	memory     world.WorkingMemory
	pending    *world.Pending
	appearance map[string]string
}

// Tick implements sim.System.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	agents := e.store.EntitiesWith(world.CompAgent)

	results := make(map[world.EntityID]*outcome, len(agents))
	var mu sync.Mutex

	e.pool.Each(ctx, agents, func(ctx context.Context, id world.EntityID) error {
		out, err := e.reason(ctx, id, now)
		if err != nil {
			return err
		}
		mu.Lock()
		results[id] = out
		mu.Unlock()
		return nil
	})

	for _, id := range agents {
		out, ok := results[id]
		if !ok {
			continue
		}
		e.apply(id, out, now)
	}
	return nil
}

// reason runs one agent's full pass: mode selection, the stage chain, and
// meta-cognition when due. It only computes; apply() writes.
func (e *Engine) reason(ctx context.Context, id world.EntityID, now time.Time) (*outcome, error) {
	ac := e.assemble(id)
	rc, _ := world.Get[world.ReasoningContext](e.store, world.CompReasoningContext, id)
	thought, _ := world.Get[world.Thought](e.store, world.CompThought, id)
	memory, _ := world.Get[world.WorkingMemory](e.store, world.CompWorkingMemory, id)

	volume := len(e.filter.Latest(id))
	mode := e.selectMode(&rc, id, volume, now)

	chain := newChain(id, mode, now)
	e.runChain(ctx, chain, ac, &rc)

	out := &outcome{chain: chain, rc: rc, thought: thought, memory: memory}
	e.digest(chain, out, now)

	if e.metaDue(&out.rc, now) {
		e.metaEvaluate(ctx, ac, out, now)
	}
	return out, nil
}

// assemble gathers the situational context for one agent.
func (e *Engine) assemble(id world.EntityID) *agentContext {
	agent, _ := world.Get[world.Agent](e.store, world.CompAgent, id)
	goals, _ := world.Get[world.Goal](e.store, world.CompGoal, id)
	memory, _ := world.Get[world.WorkingMemory](e.store, world.CompWorkingMemory, id)
	rc, _ := world.Get[world.ReasoningContext](e.store, world.CompReasoningContext, id)

	roomName := "nowhere"
	if roomID, ok := world.RoomOf(e.store, id); ok {
		if room, ok := world.Get[world.Room](e.store, world.CompRoom, roomID); ok {
			roomName = room.Name
		}
	}

	return &agentContext{
		ID:          id,
		Name:        agent.Name,
		Bio:         agent.Bio,
		RoomName:    roomName,
		Goals:       goals.ActiveGoals(),
		Percepts:    e.attn.ForReasoning(id),
		Memory:      memory,
		Experience:  agent.Experience,
		DirectInput: rc.DirectInput,
	}
}

// selectMode picks the reasoning mode for this tick. A meta-cognition
// override wins, then the elapsed-time and load rules, then the current
// attention mode's hint.
func (e *Engine) selectMode(rc *world.ReasoningContext, id world.EntityID, volume int, now time.Time) string {
	if rc.ModeOverride != "" {
		mode := rc.ModeOverride
		rc.ModeOverride = ""
		return mode
	}
	if rc.LastDeepPass.IsZero() || now.Sub(rc.LastDeepPass) >= e.cfg.DeepPassEvery {
		return ModeReflective
	}
	goals, _ := world.Get[world.Goal](e.store, world.CompGoal, id)
	active := len(goals.ActiveGoals())
	if active < 2 {
		return ModeExploratory
	}
	if volume > 5 || active > 3 {
		return ModeDeliberative
	}
	if hint, ok := attention.ReasoningHint[e.attn.Mode(id)]; ok {
		return hint
	}
	return ModeReactive
}

// runChain executes the staged state machine. The action sub-chain is
// skipped when a reflective pass is already confident in its goal
// alignment; meta_reflection closes reflective or long chains.
func (e *Engine) runChain(ctx context.Context, chain *Chain, ac *agentContext, rc *world.ReasoningContext) {
	e.runStage(ctx, chain, ac, StagePerceptionAnalysis)
	e.runStage(ctx, chain, ac, StageSituationAssessment)
	align := e.runStage(ctx, chain, ac, StageGoalAlignment)

	skipAction := chain.Mode == ModeReflective && align.Confidence >= 0.7 && rc.MinStages <= 4
	if !skipAction {
		e.runStage(ctx, chain, ac, StageOptionGeneration)
		e.runStage(ctx, chain, ac, StageEvaluation)
		e.runStage(ctx, chain, ac, StageDecision)
	}
	if chain.Mode == ModeReflective || len(chain.Stages) >= 5 {
		e.runStage(ctx, chain, ac, StageMetaReflection)
	}
}

// runStage invokes the oracle for one stage. Failure yields a degraded
// placeholder so the chain always completes.
func (e *Engine) runStage(ctx context.Context, chain *Chain, ac *agentContext, stage string) StageResult {
	res, err := e.orc.Invoke(ctx, oracle.Request{
		Agent:   ac.Name,
		Stage:   stage,
		Context: ac.prompt(chain.Stages),
	})
	sr := StageResult{Stage: stage, Timestamp: time.Now()}
	if err != nil {
		e.logger.Warn("reasoning stage degraded",
			zap.String("agent", ac.Name),
			zap.String("stage", stage),
			zap.Error(err))
		sr.Content = "no conclusion reached"
		sr.Confidence = oracle.DegradedConfidence
		sr.Degraded = true
	} else {
		sr.Content = res.Content
		sr.Confidence = res.Confidence
		sr.Evidence = res.Evidence
		sr.Alternatives = res.Alternatives
		sr.Action = res.Action
		sr.Appearance = res.Appearance
		sr.Degraded = res.Degraded
	}
	chain.Stages = append(chain.Stages, sr)
	return sr
}

// digest folds a completed chain into the outcome's component values.
func (e *Engine) digest(chain *Chain, out *outcome, now time.Time) {
	rc := &out.rc
	rc.Mode = chain.Mode
	rc.DirectInput = nil
	if chain.Mode == ModeReflective {
		rc.LastDeepPass = now
	}
	rc.Quality = append(rc.Quality, chain.AvgConfidence())
	if len(rc.Quality) > e.cfg.QualitySamples {
		rc.Quality = rc.Quality[len(rc.Quality)-e.cfg.QualitySamples:]
	}

	for _, s := range chain.Stages {
		out.thought.Records = append(out.thought.Records, world.ThoughtRecord{
			ChainID:    chain.ID,
			Stage:      s.Stage,
			Content:    s.Content,
			Confidence: s.Confidence,
			Timestamp:  s.Timestamp,
		})
		if s.Confidence > e.cfg.PromoteConfidence {
			out.memory.Entries = append(out.memory.Entries, world.MemoryEntry{
				Content:    s.Content,
				Importance: s.Confidence,
				RecordedAt: now,
			})
		}
		if len(s.Alternatives) > 0 && s.Confidence < 0.5 {
			rc.OpenQuestions = append(rc.OpenQuestions, s.Content)
		}
	}
	out.thought.Records = trimChains(out.thought.Records, e.cfg.HistoryChains)
	out.memory.Entries = trimMemory(out.memory.Entries, e.cfg.MemoryLimit)
	if len(rc.OpenQuestions) > 8 {
		rc.OpenQuestions = rc.OpenQuestions[len(rc.OpenQuestions)-8:]
	}

	if decision, ok := chain.stage(StageDecision); ok {
		if decision.Action != nil && decision.Action.Tool != "" {
			out.pending = &world.Pending{
				Tool:       decision.Action.Tool,
				Parameters: decision.Action.Parameters,
				QueuedAt:   now,
			}
		}
		if len(decision.Appearance) > 0 {
			out.appearance = decision.Appearance
		}
	}
}

// apply writes one agent's outcome and announces the completed chain.
func (e *Engine) apply(id world.EntityID, out *outcome, now time.Time) {
	writes := []struct {
		kind  world.ComponentKind
		value any
	}{
		{world.CompReasoningContext, out.rc},
		{world.CompThought, out.thought},
		{world.CompWorkingMemory, out.memory},
	}
	for _, w := range writes {
		if err := e.store.Attach(w.kind, id, w.value); err != nil {
			e.logger.Warn("reasoning write failed",
				zap.Uint64("agent", uint64(id)), zap.Error(err))
		}
	}

	if out.pending != nil {
		agent, ok := world.Get[world.Agent](e.store, world.CompAgent, id)
		if ok {
			agent.Pending = out.pending
			if err := e.store.Attach(world.CompAgent, id, agent); err != nil {
				e.logger.Warn("pending write failed",
					zap.Uint64("agent", uint64(id)), zap.Error(err))
			}
		}
	}
	if desc, ok := out.appearance["description"]; ok && desc != "" {
		app, _ := world.Get[world.Appearance](e.store, world.CompAppearance, id)
		app.Description = desc
		app.ChangedAt = now
		if err := e.store.Attach(world.CompAppearance, id, app); err != nil {
			e.logger.Warn("appearance write failed",
				zap.Uint64("agent", uint64(id)), zap.Error(err))
		}
	}

	e.pub.Publish(sim.Event{
		Type:    sim.EventChainCompleted,
		Channel: sim.AgentChannel(id),
		Entity:  id,
		Data: map[string]any{
			"chain_id": out.chain.ID,
			"mode":     out.chain.Mode,
			"stages":   len(out.chain.Stages),
			"quality":  out.chain.AvgConfidence(),
		},
		Timestamp: time.Now(),
	})
}

// trimChains keeps the records of the most recent n chains.
func trimChains(records []world.ThoughtRecord, n int) []world.ThoughtRecord {
	seen := make(map[string]bool)
	order := make([]string, 0, n)
	for i := len(records) - 1; i >= 0; i-- {
		if !seen[records[i].ChainID] {
			seen[records[i].ChainID] = true
			order = append(order, records[i].ChainID)
		}
	}
	if len(order) <= n {
		return records
	}
	keep := make(map[string]bool, n)
	for _, id := range order[:n] {
		keep[id] = true
	}
	out := records[:0]
	for _, r := range records {
		if keep[r.ChainID] {
			out = append(out, r)
		}
	}
	return out
}

// trimMemory keeps the most important entries, newest first among ties.
func trimMemory(entries []world.MemoryEntry, n int) []world.MemoryEntry {
	if len(entries) <= n {
		return entries
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Importance > entries[j].Importance
	})
	return entries[:n]
}
