package automation

import (
	"context"
	"sync"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ExecutionLog persists run outcomes for audit. Append is fire-and-forget
// from the Coordinator's point of view: a failure is logged locally and
// discarded, never failing the run.
type ExecutionLog interface {
	// Append stores a finalized result
	Append(ctx context.Context, result *ExecutionResult) error

	// History returns a page of results for a rule, newest first, plus
	// the total number of results recorded for that rule.
	History(ctx context.Context, ruleID string, page, limit int) ([]*ExecutionResult, int, error)
}

// InMemoryExecutionLog implements ExecutionLog using per-rule slices.
// Thread-safe with RWMutex.
type InMemoryExecutionLog struct {
	results map[string][]*ExecutionResult // ruleID -> newest first
	mu      sync.RWMutex
}

// NewInMemoryExecutionLog creates an empty in-memory execution log.
func NewInMemoryExecutionLog() *InMemoryExecutionLog {
	return &InMemoryExecutionLog{
		results: make(map[string][]*ExecutionResult),
	}
}

// Append stores a copy of the result so later mutation by the caller
// cannot alter the audit trail.
func (l *InMemoryExecutionLog) Append(_ context.Context, result *ExecutionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *result
	stored.Errors = append([]string(nil), result.Errors...)
	stored.Actions = append([]ActionOutcome(nil), result.Actions...)

	l.results[result.RuleID] = append([]*ExecutionResult{&stored}, l.results[result.RuleID]...)
	return nil
}

// History returns one page of a rule's results, newest first.
func (l *InMemoryExecutionLog) History(_ context.Context, ruleID string, page, limit int) ([]*ExecutionResult, int, error) {
	page, limit = normalizePage(page, limit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.results[ruleID]
	total := len(all)

	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*ExecutionResult, end-start)
	copy(out, all[start:end])
	return out, total, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return page, limit
}
