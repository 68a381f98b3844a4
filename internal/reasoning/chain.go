package reasoning

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/vault-city/internal/oracle"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
)

// Reasoning stages in chain order.
const (
	StagePerceptionAnalysis  = "perception_analysis"
	StageSituationAssessment = "situation_assessment"
	StageGoalAlignment       = "goal_alignment"
	StageOptionGeneration    = "option_generation"
	StageEvaluation          = "evaluation"
	StageDecision            = "decision"
	StageMetaReflection      = "meta_reflection"
)

// Reasoning modes.
const (
	ModeReflective   = "reflective"
	ModeExploratory  = "exploratory"
	ModeDeliberative = "deliberative"
	ModeReactive     = "reactive"
)

// StageResult is the outcome of one reasoning stage.
type StageResult struct {
	Stage        string
	Content      string
	Confidence   float64
	Evidence     []string
	Alternatives []string
	Action       *oracle.Action
	Appearance   map[string]string
	Degraded     bool
	Timestamp    time.Time
}

// Chain is one completed reasoning pass for an agent.
type Chain struct {
	ID        string
	Agent     world.EntityID
	Mode      string
	Stages    []StageResult
	StartedAt time.Time
}

func newChain(agent world.EntityID, mode string, now time.Time) *Chain {
	return &Chain{
		ID:        uuid.NewString(),
		Agent:     agent,
		Mode:      mode,
		StartedAt: now,
	}
}

// AvgConfidence is the chain's mean stage confidence, the quality sample
// fed to meta-cognition.
func (c *Chain) AvgConfidence() float64 {
	if len(c.Stages) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Stages {
		sum += s.Confidence
	}
	return sum / float64(len(c.Stages))
}

// stage returns the named stage result if the chain reached it.
func (c *Chain) stage(name string) (StageResult, bool) {
	for _, s := range c.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// agentContext is the situational bundle assembled once per agent per tick
// and threaded through every stage prompt.
type agentContext struct {
	ID          world.EntityID
	Name        string
	Bio         string
	RoomName    string
	Goals       []world.GoalItem
	Percepts    []stimulus.Percept
	Memory      world.WorkingMemory
	Experience  []world.Experience
	DirectInput []string
}

// prompt renders the context plus prior stage conclusions for one stage call.
func (ac *agentContext) prompt(prior []StageResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", ac.Name, ac.Bio)
	fmt.Fprintf(&b, "Location: %s\n", ac.RoomName)

	if len(ac.Goals) > 0 {
		b.WriteString("Active goals:\n")
		for _, g := range ac.Goals {
			fmt.Fprintf(&b, "- %s (priority %.1f)\n", g.Description, g.Priority)
		}
	}
	if len(ac.Percepts) > 0 {
		b.WriteString("Current perceptions:\n")
		for _, p := range ac.Percepts {
			fmt.Fprintf(&b, "- [%s] %s\n", p.Stimulus.Type, p.Stimulus.Content)
		}
	}
	if len(ac.DirectInput) > 0 {
		b.WriteString("Messages addressed to you:\n")
		for _, m := range ac.DirectInput {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if len(ac.Memory.Entries) > 0 {
		b.WriteString("Recent insights:\n")
		for _, e := range ac.Memory.Entries {
			fmt.Fprintf(&b, "- %s\n", e.Content)
		}
	}
	if n := len(ac.Experience); n > 0 {
		b.WriteString("Recent actions:\n")
		for _, e := range ac.Experience[max(0, n-3):] {
			fmt.Fprintf(&b, "- %s: success=%t %s\n", e.Tool, e.Success, e.Result)
		}
	}
	if len(prior) > 0 {
		b.WriteString("Conclusions so far this pass:\n")
		for _, s := range prior {
			fmt.Fprintf(&b, "- %s (%.2f): %s\n", s.Stage, s.Confidence, s.Content)
		}
	}
	return b.String()
}
