package world

import "time"

// RelationKind identifies a relation table. Kinds are resolved through the
// registry rather than by string comparison.
type RelationKind uint8

const (
	// RelOccupies links an agent to the room it is in. Exclusive: an agent
	// occupies exactly one room at a time; adding replaces any prior room.
	RelOccupies RelationKind = iota
	// RelStimulusInRoom links a stimulus to the room it is perceivable in.
	RelStimulusInRoom
	// RelStimulusSource links a stimulus to the entity that caused it.
	RelStimulusSource

	relationKindCount
)

// Relation is a directed link between two entities with optional metadata.
// Intensity is used by room membership, Strength by source attribution.
type Relation struct {
	Source    EntityID  `json:"source"`
	Target    EntityID  `json:"target"`
	Intensity float64   `json:"intensity,omitempty"`
	Strength  float64   `json:"strength,omitempty"`
	Since     time.Time `json:"since"`
}

// relationTable stores one relation kind with forward and reverse indexes.
type relationTable struct {
	exclusive bool
	bySource  map[EntityID][]Relation
	byTarget  map[EntityID][]Relation
}

func newRelationTable(exclusive bool) *relationTable {
	return &relationTable{
		exclusive: exclusive,
		bySource:  make(map[EntityID][]Relation),
		byTarget:  make(map[EntityID][]Relation),
	}
}

func (t *relationTable) add(rel Relation) {
	if t.exclusive {
		for _, prior := range t.bySource[rel.Source] {
			t.dropReverse(prior)
		}
		t.bySource[rel.Source] = t.bySource[rel.Source][:0]
	} else {
		// Replace an existing instance with the same endpoints instead of
		// accumulating duplicates.
		t.remove(rel.Source, rel.Target)
	}
	t.bySource[rel.Source] = append(t.bySource[rel.Source], rel)
	t.byTarget[rel.Target] = append(t.byTarget[rel.Target], rel)
}

func (t *relationTable) remove(source, target EntityID) {
	rels := t.bySource[source]
	for i, r := range rels {
		if r.Target == target {
			t.bySource[source] = append(rels[:i], rels[i+1:]...)
			t.dropReverse(r)
			return
		}
	}
}

func (t *relationTable) dropReverse(rel Relation) {
	rels := t.byTarget[rel.Target]
	for i, r := range rels {
		if r.Source == rel.Source {
			t.byTarget[rel.Target] = append(rels[:i], rels[i+1:]...)
			return
		}
	}
}

func (t *relationTable) removeEntity(id EntityID) {
	for _, r := range t.bySource[id] {
		t.dropReverse(r)
	}
	delete(t.bySource, id)
	for _, r := range t.byTarget[id] {
		rels := t.bySource[r.Source]
		for i, fr := range rels {
			if fr.Target == id {
				t.bySource[r.Source] = append(rels[:i], rels[i+1:]...)
				break
			}
		}
	}
	delete(t.byTarget, id)
}

func (t *relationTable) from(source EntityID) []Relation {
	rels := t.bySource[source]
	out := make([]Relation, len(rels))
	copy(out, rels)
	return out
}

func (t *relationTable) to(target EntityID) []Relation {
	rels := t.byTarget[target]
	out := make([]Relation, len(rels))
	copy(out, rels)
	return out
}
