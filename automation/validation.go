package automation

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// validateRule checks a complete rule definition. Used for both freshly
// built rules and merged update patches, so an update can never leave a
// half-valid definition behind.
func validateRule(r *Rule) error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	switch r.Trigger {
	case TriggerSchedule:
		if r.Schedule == "" {
			return &ValidationError{Field: "schedule", Reason: "schedule-triggered rules require a schedule"}
		}
		if _, err := cron.ParseStandard(r.Schedule); err != nil {
			return &ValidationError{Field: "schedule", Reason: fmt.Sprintf("invalid cron expression %q: %v", r.Schedule, err)}
		}
	case TriggerEvent:
		if r.EventName == "" {
			return &ValidationError{Field: "eventName", Reason: "event-triggered rules require an event name"}
		}
	case "":
		return &ValidationError{Field: "trigger", Reason: "must not be empty"}
	default:
		return &ValidationError{Field: "trigger", Reason: fmt.Sprintf("must be %q or %q, got %q", TriggerSchedule, TriggerEvent, r.Trigger)}
	}

	if len(r.Actions) == 0 {
		return &ValidationError{Field: "actions", Reason: "must contain at least one action"}
	}
	for _, a := range r.Actions {
		if !a.Known() {
			return &ValidationError{Field: "actions", Reason: fmt.Sprintf("unknown action %q", string(a))}
		}
	}

	// Reject malformed expression conditions at definition time rather
	// than first firing.
	if expr, ok := r.Conditions["expression"]; ok {
		s, ok := expr.(string)
		if !ok {
			return &ValidationError{Field: "conditions", Reason: fmt.Sprintf("expression must be a string, got %T", expr)}
		}
		if err := ValidateExpression(s); err != nil {
			return &ValidationError{Field: "conditions", Reason: fmt.Sprintf("invalid expression: %v", err)}
		}
	}

	return nil
}
