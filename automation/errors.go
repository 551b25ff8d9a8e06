package automation

import "fmt"

// ValidationError reports a malformed rule definition. It is returned
// synchronously from CreateRule/UpdateRule and never swallowed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown rule id.
type NotFoundError struct {
	RuleID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule %s not found", e.RuleID)
}

// InactiveRuleError is returned when a disabled rule is triggered manually.
type InactiveRuleError struct {
	RuleID string
}

func (e *InactiveRuleError) Error() string {
	return fmt.Sprintf("rule %s is not active", e.RuleID)
}

// UnknownActionError reports a rule referencing an action outside the
// closed action set. During a run it is caught at the Coordinator boundary
// and recorded in the ExecutionResult rather than propagated.
type UnknownActionError struct {
	Action Action
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", string(e.Action))
}

// StoreError wraps any entity store failure during query or mutation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("entity store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
