package automation

import (
	"testing"
	"time"
)

func TestCompileConditionsRelativeTime(t *testing.T) {
	asOf := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	compiled, err := CompileConditions(map[string]any{"createdBefore": "7d"}, asOf)
	if err != nil {
		t.Fatalf("CompileConditions() failed: %v", err)
	}

	if len(compiled.Query.Clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(compiled.Query.Clauses))
	}

	tb, ok := compiled.Query.Clauses[0].(TimeBefore)
	if !ok {
		t.Fatalf("expected TimeBefore clause, got %T", compiled.Query.Clauses[0])
	}
	if tb.Field != FieldCreatedAt {
		t.Errorf("field = %s, want %s", tb.Field, FieldCreatedAt)
	}

	want := asOf.Add(-7 * 24 * time.Hour)
	if !tb.Cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", tb.Cutoff, want)
	}
}

// All relative-time sub-conditions must resolve against the same as-of
// instant, not a fresh clock read per sub-condition.
func TestCompileConditionsSingleAsOfInstant(t *testing.T) {
	asOf := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	conditions := map[string]any{
		"createdBefore":    "24h",
		"lastActiveBefore": "24h",
	}

	compiled, err := CompileConditions(conditions, asOf)
	if err != nil {
		t.Fatalf("CompileConditions() failed: %v", err)
	}

	cutoffs := make(map[time.Time]bool)
	for _, clause := range compiled.Query.Clauses {
		tb, ok := clause.(TimeBefore)
		if !ok {
			t.Fatalf("expected TimeBefore clause, got %T", clause)
		}
		cutoffs[tb.Cutoff] = true
	}

	if len(cutoffs) != 1 {
		t.Errorf("sub-conditions resolved against %d instants, want 1", len(cutoffs))
	}
}

func TestCompileConditionsDeterministic(t *testing.T) {
	asOf := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	conditions := map[string]any{
		"createdBefore": "30d",
		"isVerified":    false,
	}

	first, err := CompileConditions(conditions, asOf)
	if err != nil {
		t.Fatalf("first compile failed: %v", err)
	}
	second, err := CompileConditions(conditions, asOf)
	if err != nil {
		t.Fatalf("second compile failed: %v", err)
	}

	if len(first.Query.Clauses) != len(second.Query.Clauses) {
		t.Errorf("clause counts differ: %d vs %d",
			len(first.Query.Clauses), len(second.Query.Clauses))
	}
}

func TestCompileConditionsBooleanFilters(t *testing.T) {
	compiled, err := CompileConditions(map[string]any{
		"isVerified":  false,
		"isActive":    true,
		"isSuspended": false,
	}, time.Now())
	if err != nil {
		t.Fatalf("CompileConditions() failed: %v", err)
	}

	fields := make(map[string]bool)
	for _, clause := range compiled.Query.Clauses {
		eq, ok := clause.(Equals)
		if !ok {
			t.Fatalf("expected Equals clause, got %T", clause)
		}
		fields[eq.Field] = eq.Value
	}

	if v, ok := fields[FieldVerified]; !ok || v {
		t.Errorf("is_verified clause = %v, %v; want false, true", v, ok)
	}
	if v, ok := fields[FieldActive]; !ok || !v {
		t.Errorf("is_active clause = %v, %v; want true, true", v, ok)
	}
}

func TestCompileConditionsSetExclusion(t *testing.T) {
	compiled, err := CompileConditions(map[string]any{
		"excludeRoles": []any{"admin", "moderator"},
	}, time.Now())
	if err != nil {
		t.Fatalf("CompileConditions() failed: %v", err)
	}

	if len(compiled.Query.Clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(compiled.Query.Clauses))
	}
	ns, ok := compiled.Query.Clauses[0].(NotInSet)
	if !ok {
		t.Fatalf("expected NotInSet clause, got %T", compiled.Query.Clauses[0])
	}
	if len(ns.Values) != 2 || ns.Values[0] != "admin" || ns.Values[1] != "moderator" {
		t.Errorf("values = %v, want [admin moderator]", ns.Values)
	}
}

// Unknown condition keys are ignored so compilation stays forward-compatible.
func TestCompileConditionsIgnoresUnknownKeys(t *testing.T) {
	compiled, err := CompileConditions(map[string]any{
		"isVerified":     false,
		"futureFeature":  "whatever",
		"anotherUnknown": 99,
	}, time.Now())
	if err != nil {
		t.Fatalf("CompileConditions() should ignore unknown keys, got: %v", err)
	}

	if len(compiled.Query.Clauses) != 1 {
		t.Errorf("expected 1 clause from known key, got %d", len(compiled.Query.Clauses))
	}
}

func TestCompileConditionsRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[string]any
	}{
		{"non-string duration", map[string]any{"createdBefore": 7}},
		{"garbage duration", map[string]any{"createdBefore": "soon"}},
		{"negative duration", map[string]any{"createdBefore": "-7d"}},
		{"non-bool equality", map[string]any{"isVerified": "yes"}},
		{"non-list exclusion", map[string]any{"excludeRoles": "admin"}},
		{"non-string exclusion element", map[string]any{"excludeRoles": []any{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileConditions(tt.conditions, time.Now()); err == nil {
				t.Error("CompileConditions() should have failed")
			}
		})
	}
}

func TestParseRelativeDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"36h", 36 * time.Hour},
		{"90m", 90 * time.Minute},
	}

	for _, tt := range tests {
		got, err := parseRelativeDuration(tt.in)
		if err != nil {
			t.Errorf("parseRelativeDuration(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRelativeDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExpressionFilterMatch(t *testing.T) {
	compiled, err := CompileConditions(map[string]any{
		"expression": `User.Role == "member" && !User.Verified`,
	}, time.Now())
	if err != nil {
		t.Fatalf("CompileConditions() failed: %v", err)
	}
	if compiled.Filter == nil {
		t.Fatal("expected a compiled expression filter")
	}

	matched, err := compiled.Filter.Match(Entity{ID: "u1", Role: "member", Verified: false})
	if err != nil {
		t.Fatalf("Match() failed: %v", err)
	}
	if !matched {
		t.Error("entity should match the expression")
	}

	matched, err = compiled.Filter.Match(Entity{ID: "u2", Role: "admin", Verified: false})
	if err != nil {
		t.Fatalf("Match() failed: %v", err)
	}
	if matched {
		t.Error("admin entity should not match the expression")
	}
}

func TestValidateExpression(t *testing.T) {
	if err := ValidateExpression(`User.Active`); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateExpression(`User.Age >==`); err == nil {
		t.Error("malformed expression should fail compile check")
	}
}
