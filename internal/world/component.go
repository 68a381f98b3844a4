package world

import (
	"fmt"
	"time"
)

// ComponentKind identifies a component column.
type ComponentKind uint8

const (
	CompAgent ComponentKind = iota
	CompRoom
	CompGoal
	CompPlan
	CompWorkingMemory
	CompReasoningContext
	CompAttention
	CompThought
	CompStimulus
	CompAppearance
	CompCleanup

	componentKindCount
)

// StimulusType categorizes how a stimulus is perceived.
type StimulusType string

const (
	StimulusVisual        StimulusType = "visual"
	StimulusAuditory      StimulusType = "auditory"
	StimulusCognitive     StimulusType = "cognitive"
	StimulusTechnical     StimulusType = "technical"
	StimulusEnvironmental StimulusType = "environmental"
)

// SourceKind categorizes what produced a stimulus.
type SourceKind string

const (
	SourceAgent    SourceKind = "agent"
	SourceRoom     SourceKind = "room"
	SourceSystem   SourceKind = "system"
	SourceExternal SourceKind = "external"
)

// Agent is the core component of a resident: identity, pending action slot
// and a bounded experience log.
type Agent struct {
	Name       string       `json:"name"`
	Bio        string       `json:"bio"`
	Pending    *Pending     `json:"pending,omitempty"`
	Experience []Experience `json:"experience,omitempty"`
}

// Pending is the single queued action for an agent. It is set only by a
// completed reasoning chain's decision stage and cleared after dispatch.
type Pending struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
	QueuedAt   time.Time      `json:"queued_at"`
}

// Experience records an action outcome for future reasoning context.
type Experience struct {
	Tool      string    `json:"tool"`
	Success   bool      `json:"success"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Room is a location agents occupy and stimuli live in.
type Room struct {
	Name     string `json:"name"`
	Ambience string `json:"ambience,omitempty"`
}

// GoalItem is a single objective an agent holds.
type GoalItem struct {
	Description string  `json:"description"`
	Priority    float64 `json:"priority"` // 0-1
	Active      bool    `json:"active"`
}

// Goal holds an agent's objectives.
type Goal struct {
	Items []GoalItem `json:"items"`
}

// ActiveGoals returns only the goals currently being pursued.
func (g Goal) ActiveGoals() []GoalItem {
	var out []GoalItem
	for _, it := range g.Items {
		if it.Active {
			out = append(out, it)
		}
	}
	return out
}

// Plan is an agent's current multi-step intention.
type Plan struct {
	Steps   []string `json:"steps"`
	Current int      `json:"current"`
}

// MemoryEntry is one insight or observation in working memory.
type MemoryEntry struct {
	Content    string    `json:"content"`
	Importance float64   `json:"importance"` // 0-1
	RecordedAt time.Time `json:"recorded_at"`
}

// WorkingMemory is a bounded, importance-ranked list of recent insights.
type WorkingMemory struct {
	Entries []MemoryEntry `json:"entries"`
}

// ReasoningContext carries the per-agent reasoning state that survives
// between ticks.
type ReasoningContext struct {
	Mode          string    `json:"mode"`
	ModeOverride  string    `json:"mode_override,omitempty"`
	MinStages     int       `json:"min_stages"`
	LastDeepPass  time.Time `json:"last_deep_pass"`
	LastMetaEval  time.Time `json:"last_meta_eval"`
	Quality       []float64 `json:"quality,omitempty"`       // recent chain confidence samples
	OpenQuestions []string  `json:"open_questions,omitempty"` // unresolved high-impact observations
	DirectInput   []string  `json:"direct_input,omitempty"`   // injected chat addressed to this agent
}

// FocusEntry is one item on the attention focus stack.
type FocusEntry struct {
	Target    EntityID  `json:"target"`
	Kind      string    `json:"kind"` // stimulus|agent|goal|threat
	Relevance float64   `json:"relevance"`
	Urgency   float64   `json:"urgency"`
	DecayRate float64   `json:"decay_rate"`
	AddedAt   time.Time `json:"added_at"`
}

// Score is the combined attention score used for ordering.
func (f FocusEntry) Score() float64 {
	return 0.6*f.Relevance + 0.4*f.Urgency
}

// Attention holds an agent's focus stack and derived mode.
type Attention struct {
	Focus     []FocusEntry `json:"focus"`
	Mode      string       `json:"mode"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ThoughtRecord summarizes one reasoning stage for inspection.
type ThoughtRecord struct {
	ChainID    string    `json:"chain_id"`
	Stage      string    `json:"stage"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Thought keeps the most recent reasoning trace of an agent.
type Thought struct {
	Records []ThoughtRecord `json:"records"`
}

// Stimulus is an ephemeral, decaying perceivable event.
type Stimulus struct {
	Type       StimulusType `json:"type"`
	SourceID   EntityID     `json:"source_id"`
	SourceKind SourceKind   `json:"source_kind"`
	Content    string       `json:"content"`
	Decay      int          `json:"decay"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Appearance describes how an agent currently looks to others.
type Appearance struct {
	Description string    `json:"description"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Cleanup is a tag component. An entity carrying it is removed by the next
// sweep; tagging instead of deleting keeps in-flight iteration valid.
type Cleanup struct{}

// ComponentSpec describes one component column for the registry.
type ComponentSpec struct {
	Name     string
	Validate func(record any) error
}

// RelationSpec describes one relation table for the registry.
type RelationSpec struct {
	Name      string
	Exclusive bool
}

// Registry declares all component and relation kinds. It is constructed once
// at startup and passed to every system; there is no package-level state.
type Registry struct {
	components [componentKindCount]ComponentSpec
	relations  [relationKindCount]RelationSpec
}

// NewRegistry builds the registry with all known kinds and validators.
func NewRegistry() *Registry {
	r := &Registry{}
	r.components[CompAgent] = ComponentSpec{Name: "agent", Validate: func(rec any) error {
		a, ok := rec.(Agent)
		if !ok {
			return fmt.Errorf("expected Agent record")
		}
		if a.Name == "" {
			return fmt.Errorf("agent name is required")
		}
		return nil
	}}
	r.components[CompRoom] = ComponentSpec{Name: "room", Validate: func(rec any) error {
		room, ok := rec.(Room)
		if !ok {
			return fmt.Errorf("expected Room record")
		}
		if room.Name == "" {
			return fmt.Errorf("room name is required")
		}
		return nil
	}}
	r.components[CompGoal] = ComponentSpec{Name: "goal"}
	r.components[CompPlan] = ComponentSpec{Name: "plan"}
	r.components[CompWorkingMemory] = ComponentSpec{Name: "working_memory"}
	r.components[CompReasoningContext] = ComponentSpec{Name: "reasoning_context"}
	r.components[CompAttention] = ComponentSpec{Name: "attention"}
	r.components[CompThought] = ComponentSpec{Name: "thought"}
	r.components[CompStimulus] = ComponentSpec{Name: "stimulus", Validate: ValidateStimulus}
	r.components[CompAppearance] = ComponentSpec{Name: "appearance"}
	r.components[CompCleanup] = ComponentSpec{Name: "cleanup"}

	r.relations[RelOccupies] = RelationSpec{Name: "occupies", Exclusive: true}
	r.relations[RelStimulusInRoom] = RelationSpec{Name: "stimulus_in_room"}
	r.relations[RelStimulusSource] = RelationSpec{Name: "stimulus_source"}
	return r
}

// Component returns the spec for a component kind.
func (r *Registry) Component(kind ComponentKind) ComponentSpec {
	return r.components[kind]
}

// RelationName returns the declared name of a relation kind.
func (r *Registry) RelationName(kind RelationKind) string {
	return r.relations[kind].Name
}

// MaxStimulusContent bounds the payload size accepted for a stimulus.
const MaxStimulusContent = 4096

// ValidStimulusTypes lists the accepted stimulus type values.
var ValidStimulusTypes = map[StimulusType]bool{
	StimulusVisual:        true,
	StimulusAuditory:      true,
	StimulusCognitive:     true,
	StimulusTechnical:     true,
	StimulusEnvironmental: true,
}

// ValidSourceKinds lists the accepted source kind values.
var ValidSourceKinds = map[SourceKind]bool{
	SourceAgent:    true,
	SourceRoom:     true,
	SourceSystem:   true,
	SourceExternal: true,
}

// ValidateStimulus rejects malformed stimulus records.
func ValidateStimulus(rec any) error {
	st, ok := rec.(Stimulus)
	if !ok {
		return fmt.Errorf("expected Stimulus record")
	}
	if !ValidStimulusTypes[st.Type] {
		return fmt.Errorf("invalid stimulus type %q", st.Type)
	}
	if !ValidSourceKinds[st.SourceKind] {
		return fmt.Errorf("invalid source kind %q", st.SourceKind)
	}
	if len(st.Content) > MaxStimulusContent {
		return fmt.Errorf("stimulus content exceeds %d bytes", MaxStimulusContent)
	}
	if st.Decay < 0 {
		return fmt.Errorf("stimulus decay must be >= 0")
	}
	return nil
}
