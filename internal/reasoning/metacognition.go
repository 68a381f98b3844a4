package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/vault-city/internal/oracle"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

const metaStage = "meta_cognition"

// metaDue reports whether the periodic self-evaluation should run: enough
// time elapsed, reasoning quality slipping, or too many open questions.
func (e *Engine) metaDue(rc *world.ReasoningContext, now time.Time) bool {
	if rc.LastMetaEval.IsZero() {
		// First pass establishes the baseline instead of evaluating.
		rc.LastMetaEval = now
		return false
	}
	if now.Sub(rc.LastMetaEval) > e.cfg.MetaEvalEvery {
		return true
	}
	if avg, n := qualityAvg(rc.Quality); n >= 3 && avg < 0.5 {
		return true
	}
	return len(rc.OpenQuestions) > 3
}

// metaEvaluate runs the self-evaluation and applies its strategy
// adjustments to the outcome's reasoning context. Oracle failure produces
// a minimal fallback analysis instead of failing the tick.
func (e *Engine) metaEvaluate(ctx context.Context, ac *agentContext, out *outcome, now time.Time) {
	rc := &out.rc
	avg, n := qualityAvg(rc.Quality)

	var b strings.Builder
	fmt.Fprintf(&b, "Self-evaluation for %s.\n", ac.Name)
	fmt.Fprintf(&b, "Recent reasoning quality: %.2f over %d passes.\n", avg, n)
	if len(rc.OpenQuestions) > 0 {
		b.WriteString("Unresolved observations:\n")
		for _, q := range rc.OpenQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	b.WriteString("Assess your recent thinking and name what to change.")

	res, err := e.orc.Invoke(ctx, oracle.Request{
		Agent:   ac.Name,
		Stage:   metaStage,
		Context: b.String(),
	})
	insight := "self-evaluation unavailable; continuing with current strategy"
	importance := 0.4
	if err != nil {
		e.logger.Warn("meta-cognition degraded", zap.String("agent", ac.Name), zap.Error(err))
	} else {
		insight = res.Content
		importance = res.Confidence
	}

	out.memory.Entries = append(out.memory.Entries, world.MemoryEntry{
		Content:    insight,
		Importance: importance,
		RecordedAt: now,
	})
	out.memory.Entries = trimMemory(out.memory.Entries, e.cfg.MemoryLimit)

	// Strategy adjustments are rule-driven so they hold even when the
	// oracle is down.
	if n >= 3 && avg < 0.5 {
		rc.ModeOverride = ModeDeliberative
		rc.MinStages = 6
	} else {
		rc.MinStages = 0
	}
	if len(rc.OpenQuestions) > 3 {
		rc.ModeOverride = ModeReflective
		rc.OpenQuestions = nil
	}
	if repetitive(out.thought.Records) {
		out.thought.Records = nil
		e.logger.Debug("thread history reset", zap.String("agent", ac.Name))
	}
	rc.Quality = nil
	rc.LastMetaEval = now
}

func qualityAvg(samples []float64) (float64, int) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples)), len(samples)
}

// repetitive reports whether the last three chains ended in the same
// decision content, a sign the agent is stuck in a loop.
func repetitive(records []world.ThoughtRecord) bool {
	var decisions []string
	for i := len(records) - 1; i >= 0 && len(decisions) < 3; i-- {
		if records[i].Stage == StageDecision {
			decisions = append(decisions, records[i].Content)
		}
	}
	if len(decisions) < 3 {
		return false
	}
	return decisions[0] == decisions[1] && decisions[1] == decisions[2]
}
