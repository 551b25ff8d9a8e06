package automation

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the recurring-timer handles for schedule-triggered rules,
// keyed by rule id. Register on an id that already has a handle is a no-op;
// the Registry deregisters explicitly before re-registering, which keeps the
// one-handle-per-rule invariant at the call site. Deregister on a missing
// handle is likewise a no-op.
type Scheduler interface {
	Register(ruleID, schedule string, fn func()) error
	Deregister(ruleID string)
}

// CronScheduler implements Scheduler over a robfig/cron runner with the
// standard 5-field parser (minute hour day month weekday).
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
}

// NewCronScheduler creates a stopped scheduler; call Start to begin firing.
func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	// Recover so a panicking firing cannot kill the cron runner.
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &CronScheduler{
		cron:    c,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins executing registered schedules.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop prevents future firings. In-flight firings are never interrupted;
// the returned wait completes once they finish.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Register creates a recurring-timer handle for the rule. No-op when a
// handle already exists for the id.
func (s *CronScheduler) Register(ruleID, schedule string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[ruleID]; exists {
		return nil
	}

	entryID, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("failed to add cron entry for rule %s: %w", ruleID, err)
	}

	s.entries[ruleID] = entryID
	return nil
}

// Deregister destroys the rule's handle, preventing future firings only.
// No-op when no handle exists.
func (s *CronScheduler) Deregister(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.entries[ruleID]
	if !exists {
		return
	}
	s.cron.Remove(entryID)
	delete(s.entries, ruleID)
}

// Scheduled reports whether a live handle exists for the rule id.
func (s *CronScheduler) Scheduled(ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.entries[ruleID]
	return exists
}
