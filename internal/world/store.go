package world

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// EntityID identifies a thing in the world. Entities carry no data of their
// own; everything lives in component columns and relation tables.
type EntityID uint64

// ErrNotFound is returned when an entity, component, or relation is missing.
var ErrNotFound = fmt.Errorf("not found")

// Store holds all entities, their components, and relations.
// Each exported call is atomic; callers must not assume consistency
// across separate calls under concurrent mutation.
type Store struct {
	nextID     EntityID
	alive      map[EntityID]struct{}
	components []map[EntityID]any // indexed by ComponentKind
	relations  []*relationTable   // indexed by RelationKind
	registry   *Registry
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewStore creates an empty store backed by the given registry.
func NewStore(reg *Registry, logger *zap.Logger) *Store {
	s := &Store{
		alive:      make(map[EntityID]struct{}),
		components: make([]map[EntityID]any, componentKindCount),
		relations:  make([]*relationTable, relationKindCount),
		registry:   reg,
		logger:     logger,
	}
	for i := range s.components {
		s.components[i] = make(map[EntityID]any)
	}
	for i := range s.relations {
		s.relations[i] = newRelationTable(reg.relations[i].Exclusive)
	}
	return s
}

// Registry returns the registry the store was built with.
func (s *Store) Registry() *Registry { return s.registry }

// CreateEntity allocates a new entity id.
func (s *Store) CreateEntity() EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.alive[id] = struct{}{}
	return id
}

// DestroyEntity removes an entity along with all its components and
// relations (both directions).
func (s *Store) DestroyEntity(id EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alive, id)
	for _, col := range s.components {
		delete(col, id)
	}
	for _, tbl := range s.relations {
		tbl.removeEntity(id)
	}
	s.logger.Debug("entity destroyed", zap.Uint64("entity", uint64(id)))
}

// Alive reports whether an entity exists.
func (s *Store) Alive(id EntityID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.alive[id]
	return ok
}

// Attach sets a component on an entity, validating it against the registry.
func (s *Store) Attach(kind ComponentKind, id EntityID, record any) error {
	spec := s.registry.Component(kind)
	if spec.Validate != nil {
		if err := spec.Validate(record); err != nil {
			return fmt.Errorf("attach %s: %w", spec.Name, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alive[id]; !ok {
		return fmt.Errorf("attach %s to entity %d: %w", spec.Name, id, ErrNotFound)
	}
	s.components[kind][id] = record
	return nil
}

// Detach removes a component from an entity.
func (s *Store) Detach(kind ComponentKind, id EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.components[kind], id)
}

// Component returns the raw component record for an entity.
func (s *Store) Component(kind ComponentKind, id EntityID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.components[kind][id]
	return rec, ok
}

// Has reports whether an entity carries a component. Tag components use
// this as their whole meaning.
func (s *Store) Has(kind ComponentKind, id EntityID) bool {
	_, ok := s.Component(kind, id)
	return ok
}

// EntitiesWith returns all entity ids holding a component, in ascending
// order so that iteration is deterministic.
func (s *Store) EntitiesWith(kind ComponentKind) []EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]EntityID, 0, len(s.components[kind]))
	for id := range s.components[kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of entities holding a component.
func (s *Store) Count(kind ComponentKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.components[kind])
}

// Get returns a typed component record. The second return is false when the
// entity lacks the component or it holds a different type.
func Get[T any](s *Store, kind ComponentKind, id EntityID) (T, bool) {
	var zero T
	rec, ok := s.Component(kind, id)
	if !ok {
		return zero, false
	}
	t, ok := rec.(T)
	if !ok {
		return zero, false
	}
	return t, ok
}

// AddRelation establishes a relation. For exclusive relation kinds any
// prior instance from the same source is replaced, never duplicated.
func (s *Store) AddRelation(kind RelationKind, rel Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alive[rel.Source]; !ok {
		return fmt.Errorf("relation %s source %d: %w", s.registry.relations[kind].Name, rel.Source, ErrNotFound)
	}
	if _, ok := s.alive[rel.Target]; !ok {
		return fmt.Errorf("relation %s target %d: %w", s.registry.relations[kind].Name, rel.Target, ErrNotFound)
	}
	s.relations[kind].add(rel)
	return nil
}

// RemoveRelation removes a specific source→target relation instance.
func (s *Store) RemoveRelation(kind RelationKind, source, target EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations[kind].remove(source, target)
}

// RelationsFrom returns all relations outgoing from a source entity.
func (s *Store) RelationsFrom(kind RelationKind, source EntityID) []Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relations[kind].from(source)
}

// RelationsTo returns all relations pointing at a target entity.
func (s *Store) RelationsTo(kind RelationKind, target EntityID) []Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relations[kind].to(target)
}

// FirstTarget returns the single target of an exclusive relation, if set.
func (s *Store) FirstTarget(kind RelationKind, source EntityID) (EntityID, bool) {
	rels := s.RelationsFrom(kind, source)
	if len(rels) == 0 {
		return 0, false
	}
	return rels[0].Target, true
}
