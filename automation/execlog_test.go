package automation

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInMemoryExecutionLogAppendAndHistory(t *testing.T) {
	log := NewInMemoryExecutionLog()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := log.Append(ctx, &ExecutionResult{
			ID:        fmt.Sprintf("exec-%d", i),
			RuleID:    "r-1",
			StartTime: time.Now(),
			Success:   true,
		})
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	results, total, err := log.History(ctx, "r-1", 1, 10)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(results) != 5 {
		t.Errorf("page size = %d, want 5", len(results))
	}
	// Newest first
	if results[0].ID != "exec-4" {
		t.Errorf("first result = %s, want exec-4", results[0].ID)
	}
}

func TestInMemoryExecutionLogPagination(t *testing.T) {
	log := NewInMemoryExecutionLog()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := log.Append(ctx, &ExecutionResult{ID: fmt.Sprintf("exec-%d", i), RuleID: "r-1"}); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	page1, total, err := log.History(ctx, "r-1", 1, 3)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if total != 7 || len(page1) != 3 {
		t.Fatalf("page 1: total=%d len=%d, want 7 and 3", total, len(page1))
	}

	page3, _, err := log.History(ctx, "r-1", 3, 3)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("page 3 length = %d, want 1", len(page3))
	}

	empty, _, err := log.History(ctx, "r-1", 4, 3)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("past-the-end page length = %d, want 0", len(empty))
	}
}

func TestInMemoryExecutionLogDefaultsAndCaps(t *testing.T) {
	log := NewInMemoryExecutionLog()
	ctx := context.Background()

	if err := log.Append(ctx, &ExecutionResult{ID: "e", RuleID: "r-1"}); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	// Page and limit below 1 fall back to defaults instead of erroring.
	results, total, err := log.History(ctx, "r-1", 0, 0)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if total != 1 || len(results) != 1 {
		t.Errorf("got total=%d len=%d, want 1 and 1", total, len(results))
	}
}

// The stored result must be isolated from later mutation by the caller.
func TestInMemoryExecutionLogStoresCopy(t *testing.T) {
	log := NewInMemoryExecutionLog()
	ctx := context.Background()

	result := &ExecutionResult{ID: "e", RuleID: "r-1", Errors: []string{"boom"}}
	if err := log.Append(ctx, result); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	result.Errors[0] = "mutated"
	result.Success = true

	stored, _, err := log.History(ctx, "r-1", 1, 1)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if stored[0].Errors[0] != "boom" {
		t.Error("audit trail was mutated through the caller's reference")
	}
	if stored[0].Success {
		t.Error("audit trail success flag was mutated")
	}
}

func TestExecutionLogInterface(t *testing.T) {
	var _ ExecutionLog = (*InMemoryExecutionLog)(nil)
	var _ ExecutionLog = (*PostgresExecutionLog)(nil)
}
