package automation

import (
	"fmt"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval. RecordExecution must
// serialize the read-modify-write of a rule's execution metadata so a
// scheduled and a manual finalize racing on the same id cannot lose an
// update.
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List all rules
	List() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error

	// RecordExecution bumps ExecutionCount and sets LastExecuted
	RecordExecution(id string, at time.Time) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex. All reads return clones so callers hold
// snapshots, never live references.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add adds a new rule to the store
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule.Clone()
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, &NotFoundError{RuleID: id}
	}
	return rule.Clone(), nil
}

// List returns a snapshot of all rules
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule.Clone())
	}
	return rules, nil
}

// Update updates an existing rule
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return &NotFoundError{RuleID: rule.ID}
	}

	updated := rule.Clone()
	// Preserve original CreatedAt and execution metadata
	updated.CreatedAt = existing.CreatedAt
	updated.ExecutionCount = existing.ExecutionCount
	updated.LastExecuted = existing.LastExecuted
	updated.UpdatedAt = time.Now()
	s.rules[rule.ID] = updated
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return &NotFoundError{RuleID: id}
	}

	delete(s.rules, id)
	return nil
}

// RecordExecution updates a rule's execution metadata under the store lock.
func (s *InMemoryRuleStore) RecordExecution(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return &NotFoundError{RuleID: id}
	}

	rule.ExecutionCount++
	t := at
	rule.LastExecuted = &t
	return nil
}
