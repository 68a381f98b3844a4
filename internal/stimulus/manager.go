package stimulus

import (
	"fmt"
	"math"
	"time"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// ValidationError rejects a malformed stimulus request. No entity is
// mutated when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid stimulus %s: %s", e.Field, e.Reason)
}

// DefaultDecay is the lifetime, in cleanup passes, of a stimulus created
// without an explicit decay.
const DefaultDecay = 3

// RelevanceThreshold is the minimum priority a stimulus needs to survive
// prioritization.
const RelevanceThreshold = 0.2

// basePriority orders stimulus types by how strongly they demand attention.
var basePriority = map[world.StimulusType]float64{
	world.StimulusAuditory:      0.8,
	world.StimulusTechnical:     0.75,
	world.StimulusCognitive:     0.7,
	world.StimulusVisual:        0.6,
	world.StimulusEnvironmental: 0.4,
}

// Percept is a stimulus as gathered for one agent, with its derived
// priority. Priority is computed, never stored on the entity.
type Percept struct {
	ID       world.EntityID `json:"id"`
	Stimulus world.Stimulus `json:"stimulus"`
	Priority float64        `json:"priority"`
}

// CreateRequest describes a stimulus to inject into the world.
type CreateRequest struct {
	Type       world.StimulusType `json:"type"`
	Source     world.EntityID     `json:"source"`
	SourceKind world.SourceKind   `json:"source_kind"`
	Room       world.EntityID     `json:"room"`
	Content    string             `json:"content"`
	Decay      int                `json:"decay,omitempty"`
	Intensity  float64            `json:"intensity,omitempty"`
}

// Manager owns the stimulus lifecycle: creation, gathering, prioritization,
// decay and removal.
type Manager struct {
	store  *world.Store
	pub    sim.Publisher
	logger *zap.Logger
}

// NewManager creates a stimulus manager over the given store.
func NewManager(store *world.Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Notify makes every created stimulus publish a room-channel event.
func (m *Manager) Notify(pub sim.Publisher) { m.pub = pub }

// Create validates and creates a stimulus entity with its room membership
// and source attribution relations. The timestamp is server-assigned.
func (m *Manager) Create(req CreateRequest) (world.EntityID, error) {
	if !world.ValidStimulusTypes[req.Type] {
		return 0, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", req.Type)}
	}
	if !world.ValidSourceKinds[req.SourceKind] {
		return 0, &ValidationError{Field: "source_kind", Reason: fmt.Sprintf("unknown source kind %q", req.SourceKind)}
	}
	if len(req.Content) > world.MaxStimulusContent {
		return 0, &ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d bytes", world.MaxStimulusContent)}
	}
	if req.Intensity < 0 || req.Intensity > 1 {
		return 0, &ValidationError{Field: "intensity", Reason: "must be in [0,1]"}
	}
	if req.Decay < 0 {
		return 0, &ValidationError{Field: "decay", Reason: "must be >= 0"}
	}
	if _, ok := world.Get[world.Room](m.store, world.CompRoom, req.Room); !ok {
		return 0, fmt.Errorf("stimulus room %d: %w", req.Room, world.ErrNotFound)
	}

	decay := req.Decay
	if decay == 0 {
		decay = DefaultDecay
	}
	intensity := req.Intensity
	if intensity == 0 {
		intensity = 1.0
	}

	now := time.Now()
	id := m.store.CreateEntity()
	st := world.Stimulus{
		Type:       req.Type,
		SourceID:   req.Source,
		SourceKind: req.SourceKind,
		Content:    req.Content,
		Decay:      decay,
		CreatedAt:  now,
	}
	if err := m.store.Attach(world.CompStimulus, id, st); err != nil {
		m.store.DestroyEntity(id)
		return 0, err
	}
	if err := m.store.AddRelation(world.RelStimulusInRoom, world.Relation{
		Source: id, Target: req.Room, Intensity: intensity, Since: now,
	}); err != nil {
		m.store.DestroyEntity(id)
		return 0, err
	}
	if req.Source != 0 {
		_ = m.store.AddRelation(world.RelStimulusSource, world.Relation{
			Source: id, Target: req.Source, Strength: intensity, Since: now,
		})
	}

	m.logger.Debug("stimulus created",
		zap.Uint64("entity", uint64(id)),
		zap.String("type", string(req.Type)),
		zap.Uint64("room", uint64(req.Room)))
	if m.pub != nil {
		m.pub.Publish(sim.Event{
			Type:      sim.EventStimulusCreated,
			Channel:   sim.RoomChannel(req.Room),
			Entity:    id,
			Data:      st,
			Timestamp: now,
		})
	}
	return id, nil
}

// GatherForAgent unions stimuli present in the agent's room with stimuli
// attributed to the agent. Structurally broken stimuli are tagged for
// cleanup instead of being returned.
func (m *Manager) GatherForAgent(agentID world.EntityID) []Percept {
	seen := make(map[world.EntityID]bool)
	var out []Percept

	collect := func(id world.EntityID) {
		if seen[id] {
			return
		}
		seen[id] = true
		st, ok := world.Get[world.Stimulus](m.store, world.CompStimulus, id)
		if !ok || m.orphaned(id) {
			_ = m.store.Attach(world.CompCleanup, id, world.Cleanup{})
			return
		}
		out = append(out, Percept{ID: id, Stimulus: st})
	}

	if roomID, ok := world.RoomOf(m.store, agentID); ok {
		for _, rel := range m.store.RelationsTo(world.RelStimulusInRoom, roomID) {
			collect(rel.Source)
		}
	}
	for _, rel := range m.store.RelationsTo(world.RelStimulusSource, agentID) {
		collect(rel.Source)
	}
	return out
}

// orphaned reports whether a stimulus lost its required room membership.
func (m *Manager) orphaned(id world.EntityID) bool {
	return len(m.store.RelationsFrom(world.RelStimulusInRoom, id)) == 0
}

// Prioritize drops self-generated visual stimuli and stimuli below the
// relevance threshold, then orders the rest by descending priority.
// Priority = type base priority - min(age_seconds/10, 1), floored at 0.
func (m *Manager) Prioritize(percepts []Percept, agentID world.EntityID) []Percept {
	now := time.Now()
	out := make([]Percept, 0, len(percepts))
	for _, p := range percepts {
		st := p.Stimulus
		// An agent does not perceive its own appearance as novel input.
		if st.Type == world.StimulusVisual && st.SourceID == agentID {
			continue
		}
		age := now.Sub(st.CreatedAt).Seconds()
		p.Priority = math.Max(0, basePriority[st.Type]-math.Min(age/10, 1))
		if p.Priority < RelevanceThreshold {
			continue
		}
		out = append(out, p)
	}
	sortByPriority(out)
	return out
}

func sortByPriority(percepts []Percept) {
	// Insertion sort keeps ties stable in gather order.
	for i := 1; i < len(percepts); i++ {
		for j := i; j > 0 && percepts[j].Priority > percepts[j-1].Priority; j-- {
			percepts[j], percepts[j-1] = percepts[j-1], percepts[j]
		}
	}
}

// DecayPass decrements every stimulus's decay counter and tags expired or
// orphaned stimuli for cleanup. Tagging instead of deleting lets other
// systems finish iterating the same tick; Sweep removes tagged entities.
func (m *Manager) DecayPass() (tagged int) {
	for _, id := range m.store.EntitiesWith(world.CompStimulus) {
		st, ok := world.Get[world.Stimulus](m.store, world.CompStimulus, id)
		if !ok {
			continue
		}
		if st.Decay > 0 {
			st.Decay--
			_ = m.store.Attach(world.CompStimulus, id, st)
		}
		if st.Decay <= 0 || m.orphaned(id) {
			_ = m.store.Attach(world.CompCleanup, id, world.Cleanup{})
			tagged++
		}
	}
	return tagged
}

// Sweep destroys every Cleanup-tagged entity.
func (m *Manager) Sweep() (removed int) {
	for _, id := range m.store.EntitiesWith(world.CompCleanup) {
		m.store.DestroyEntity(id)
		removed++
	}
	if removed > 0 {
		m.logger.Debug("cleanup sweep", zap.Int("removed", removed))
	}
	return removed
}

// ActiveCount returns the number of live stimuli.
func (m *Manager) ActiveCount() int {
	return m.store.Count(world.CompStimulus)
}
