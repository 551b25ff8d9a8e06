package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Entity fields addressable by condition clauses.
const (
	FieldCreatedAt    = "created_at"
	FieldLastActiveAt = "last_active_at"
	FieldVerified     = "is_verified"
	FieldActive       = "is_active"
	FieldSuspended    = "is_suspended"
	FieldRole         = "role"
)

// Clause is one compiled condition. The set of kinds is closed and the
// entity stores match over it exhaustively.
type Clause interface {
	clause()
}

// TimeBefore matches entities whose timestamp field is older than Cutoff.
type TimeBefore struct {
	Field  string
	Cutoff time.Time
}

// Equals matches entities whose boolean field equals Value.
type Equals struct {
	Field string
	Value bool
}

// NotInSet matches entities whose string field is outside Values.
type NotInSet struct {
	Field  string
	Values []string
}

func (TimeBefore) clause() {}
func (Equals) clause()     {}
func (NotInSet) clause()   {}

// Query is the store-native predicate produced by compiling a rule's
// conditions. Clauses combine with AND.
type Query struct {
	Clauses []Clause
}

// EntityFilter is an in-memory post-filter over entities already fetched
// from the store, backed by a compiled CEL program.
type EntityFilter struct {
	prog cel.Program
}

// CompiledConditions is the output of CompileConditions: a store query plus
// an optional expression filter applied to the fetched set.
type CompiledConditions struct {
	Query  Query
	Filter *EntityFilter
}

// CompileConditions translates a declarative condition map into a store
// query predicate. All relative-time sub-conditions resolve against the
// single supplied asOf instant so one run stays internally time-consistent.
// Unknown keys are ignored; known keys with malformed values fail compilation.
func CompileConditions(conditions map[string]any, asOf time.Time) (*CompiledConditions, error) {
	compiled := &CompiledConditions{}

	for key, value := range conditions {
		switch key {
		case "createdBefore":
			cutoff, err := relativeCutoff(value, asOf)
			if err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			compiled.Query.Clauses = append(compiled.Query.Clauses, TimeBefore{Field: FieldCreatedAt, Cutoff: cutoff})

		case "lastActiveBefore":
			cutoff, err := relativeCutoff(value, asOf)
			if err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			compiled.Query.Clauses = append(compiled.Query.Clauses, TimeBefore{Field: FieldLastActiveAt, Cutoff: cutoff})

		case "isVerified", "isActive", "isSuspended":
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("condition %q: expected boolean, got %T", key, value)
			}
			compiled.Query.Clauses = append(compiled.Query.Clauses, Equals{Field: booleanField(key), Value: b})

		case "excludeRoles":
			roles, err := stringSlice(value)
			if err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			if len(roles) > 0 {
				compiled.Query.Clauses = append(compiled.Query.Clauses, NotInSet{Field: FieldRole, Values: roles})
			}

		case "expression":
			expr, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("condition %q: expected string, got %T", key, value)
			}
			prog, err := compileExpression(expr)
			if err != nil {
				return nil, fmt.Errorf("condition %q: %w", key, err)
			}
			compiled.Filter = &EntityFilter{prog: prog}

		default:
			// Unknown keys are ignored so older engine versions keep
			// accepting rules written against newer condition vocabularies.
		}
	}

	return compiled, nil
}

func booleanField(key string) string {
	switch key {
	case "isVerified":
		return FieldVerified
	case "isActive":
		return FieldActive
	default:
		return FieldSuspended
	}
}

// relativeCutoff resolves a relative-duration value like "7d" or "36h"
// to an absolute instant: asOf minus the duration.
func relativeCutoff(value any, asOf time.Time) (time.Time, error) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected duration string, got %T", value)
	}

	d, err := parseRelativeDuration(s)
	if err != nil {
		return time.Time{}, err
	}
	return asOf.Add(-d), nil
}

// parseRelativeDuration accepts time.ParseDuration syntax plus a "d" suffix
// for whole days ("7d" == 168h).
func parseRelativeDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func stringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", value)
	}
}

// newConditionEnv builds the CEL environment used by expression conditions.
// The matched entity is exposed as a dynamic User variable.
func newConditionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("User", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compileExpression compiles a CEL expression condition. A cost limit is
// applied so a malicious or runaway expression cannot exhaust the run.
func compileExpression(expr string) (cel.Program, error) {
	env, err := newConditionEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return prog, nil
}

// ValidateExpression compile-checks an expression condition without
// evaluating it, so malformed expressions are rejected at rule creation
// rather than first firing.
func ValidateExpression(expr string) error {
	_, err := compileExpression(expr)
	return err
}

// Match evaluates the filter against one entity. Non-boolean results are
// treated as no-match.
func (f *EntityFilter) Match(e Entity) (bool, error) {
	out, _, err := f.prog.Eval(map[string]any{
		"User": e.factMap(),
	})
	if err != nil {
		return false, err
	}

	if matched, ok := out.Value().(bool); ok {
		return matched, nil
	}
	return false, nil
}
