package automation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entity is one user record as seen by the rule engine.
type Entity struct {
	ID              string
	Email           string
	Username        string
	Role            string
	Verified        bool
	Active          bool
	Suspended       bool
	SuspendedReason string
	SuspendedAt     *time.Time
	CreatedAt       time.Time
	LastActiveAt    time.Time
}

// factMap exposes the entity to CEL expression conditions.
func (e Entity) factMap() map[string]any {
	return map[string]any{
		"ID":           e.ID,
		"Email":        e.Email,
		"Username":     e.Username,
		"Role":         e.Role,
		"Verified":     e.Verified,
		"Active":       e.Active,
		"Suspended":    e.Suspended,
		"CreatedAt":    e.CreatedAt,
		"LastActiveAt": e.LastActiveAt,
	}
}

// EntityPatch is a partial update applied by UpdateMany. Nil fields are
// left unchanged.
type EntityPatch struct {
	Active          *bool
	Suspended       *bool
	SuspendedReason *string
	SuspendedAt     *time.Time
}

// EntityStore is the data-access collaborator queried and mutated by rule
// runs. Find result order is irrelevant; DeleteMany on already-deleted ids
// is a no-op so duplicate concurrent runs converge.
type EntityStore interface {
	Count(ctx context.Context, q Query) (int, error)
	Find(ctx context.Context, q Query) ([]Entity, error)
	UpdateMany(ctx context.Context, ids []string, patch EntityPatch) (int, error)
	DeleteMany(ctx context.Context, ids []string) (int, error)
}

// InMemoryEntityStore implements EntityStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryEntityStore struct {
	entities map[string]Entity
	mu       sync.RWMutex
}

// NewInMemoryEntityStore creates an empty in-memory entity store.
func NewInMemoryEntityStore() *InMemoryEntityStore {
	return &InMemoryEntityStore{
		entities: make(map[string]Entity),
	}
}

// Put inserts or replaces an entity.
func (s *InMemoryEntityStore) Put(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
}

// Get returns an entity and whether it exists.
func (s *InMemoryEntityStore) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Count returns the number of entities matching q.
func (s *InMemoryEntityStore) Count(_ context.Context, q Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entities {
		if matchesQuery(e, q) {
			count++
		}
	}
	return count, nil
}

// Find returns all entities matching q.
func (s *InMemoryEntityStore) Find(_ context.Context, q Query) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entity
	for _, e := range s.entities {
		if matchesQuery(e, q) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// UpdateMany applies patch to each listed entity that exists and returns
// the number modified.
func (s *InMemoryEntityStore) UpdateMany(_ context.Context, ids []string, patch EntityPatch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	modified := 0
	for _, id := range ids {
		e, ok := s.entities[id]
		if !ok {
			continue
		}
		if patch.Active != nil {
			e.Active = *patch.Active
		}
		if patch.Suspended != nil {
			e.Suspended = *patch.Suspended
		}
		if patch.SuspendedReason != nil {
			e.SuspendedReason = *patch.SuspendedReason
		}
		if patch.SuspendedAt != nil {
			t := *patch.SuspendedAt
			e.SuspendedAt = &t
		}
		s.entities[id] = e
		modified++
	}
	return modified, nil
}

// DeleteMany removes the listed entities. Missing ids are skipped, not
// errors, so a duplicate concurrent delete converges.
func (s *InMemoryEntityStore) DeleteMany(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := s.entities[id]; ok {
			delete(s.entities, id)
			deleted++
		}
	}
	return deleted, nil
}

// matchesQuery evaluates every clause against the entity (AND semantics).
func matchesQuery(e Entity, q Query) bool {
	for _, clause := range q.Clauses {
		if !matchesClause(e, clause) {
			return false
		}
	}
	return true
}

func matchesClause(e Entity, clause Clause) bool {
	switch c := clause.(type) {
	case TimeBefore:
		return timeField(e, c.Field).Before(c.Cutoff)
	case Equals:
		return boolField(e, c.Field) == c.Value
	case NotInSet:
		v := stringField(e, c.Field)
		for _, excluded := range c.Values {
			if v == excluded {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("unhandled clause type %T", clause))
	}
}

func timeField(e Entity, field string) time.Time {
	switch field {
	case FieldCreatedAt:
		return e.CreatedAt
	case FieldLastActiveAt:
		return e.LastActiveAt
	default:
		return time.Time{}
	}
}

func boolField(e Entity, field string) bool {
	switch field {
	case FieldVerified:
		return e.Verified
	case FieldActive:
		return e.Active
	case FieldSuspended:
		return e.Suspended
	default:
		return false
	}
}

func stringField(e Entity, field string) string {
	switch field {
	case FieldRole:
		return e.Role
	default:
		return ""
	}
}
