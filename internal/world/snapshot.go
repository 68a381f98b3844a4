package world

// AgentSnapshot is the full externally visible state of one agent.
type AgentSnapshot struct {
	ID         EntityID     `json:"id"`
	Name       string       `json:"name"`
	Bio        string       `json:"bio"`
	Room       EntityID     `json:"room"`
	Mode       string       `json:"attention_mode"`
	Reasoning  string       `json:"reasoning_mode"`
	Appearance string       `json:"appearance,omitempty"`
	Goals      []GoalItem   `json:"goals,omitempty"`
	Focus      []FocusEntry `json:"focus,omitempty"`
	Experience []Experience `json:"experience,omitempty"`
}

// RoomSnapshot is the full externally visible state of one room.
type RoomSnapshot struct {
	ID        EntityID   `json:"id"`
	Name      string     `json:"name"`
	Ambience  string     `json:"ambience,omitempty"`
	Occupants []EntityID `json:"occupants"`
	Stimuli   []Stimulus `json:"stimuli,omitempty"`
}

// SnapshotAgent assembles an agent snapshot, or ok=false if the entity is
// not an agent.
func SnapshotAgent(s *Store, id EntityID) (AgentSnapshot, bool) {
	agent, ok := Get[Agent](s, CompAgent, id)
	if !ok {
		return AgentSnapshot{}, false
	}
	snap := AgentSnapshot{
		ID:         id,
		Name:       agent.Name,
		Bio:        agent.Bio,
		Experience: agent.Experience,
	}
	if room, ok := RoomOf(s, id); ok {
		snap.Room = room
	}
	if att, ok := Get[Attention](s, CompAttention, id); ok {
		snap.Mode = att.Mode
		snap.Focus = att.Focus
	}
	if rc, ok := Get[ReasoningContext](s, CompReasoningContext, id); ok {
		snap.Reasoning = rc.Mode
	}
	if ap, ok := Get[Appearance](s, CompAppearance, id); ok {
		snap.Appearance = ap.Description
	}
	if g, ok := Get[Goal](s, CompGoal, id); ok {
		snap.Goals = g.Items
	}
	return snap, true
}

// SnapshotRoom assembles a room snapshot, or ok=false if the entity is not
// a room.
func SnapshotRoom(s *Store, id EntityID) (RoomSnapshot, bool) {
	room, ok := Get[Room](s, CompRoom, id)
	if !ok {
		return RoomSnapshot{}, false
	}
	snap := RoomSnapshot{
		ID:        id,
		Name:      room.Name,
		Ambience:  room.Ambience,
		Occupants: Occupants(s, id),
	}
	for _, rel := range s.RelationsTo(RelStimulusInRoom, id) {
		if st, ok := Get[Stimulus](s, CompStimulus, rel.Source); ok {
			snap.Stimuli = append(snap.Stimuli, st)
		}
	}
	return snap, true
}
