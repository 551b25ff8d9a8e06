package automation

import "time"

// Trigger is the cause of a rule run: a wall-clock schedule or a platform event.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerEvent    Trigger = "event"
)

// Action names one operation applied to the matched entity set.
// The set is closed: the Executor matches exhaustively over these values
// and anything else fails with UnknownActionError at run time.
type Action string

const (
	ActionSuspend     Action = "suspend"
	ActionDelete      Action = "delete"
	ActionNotifyOwner Action = "notify-owner"
	ActionSendWelcome Action = "send-welcome"
	ActionLogOnly     Action = "log-only"
)

// Known reports whether a is part of the closed action set.
func (a Action) Known() bool {
	switch a {
	case ActionSuspend, ActionDelete, ActionNotifyOwner, ActionSendWelcome, ActionLogOnly:
		return true
	}
	return false
}

// Destructive actions run with smaller batch sizes.
func (a Action) Destructive() bool {
	return a == ActionDelete
}

// Rule is a persisted automation definition: trigger + conditions + actions.
type Rule struct {
	ID             string
	Name           string
	Description    string
	Trigger        Trigger
	Schedule       string // cron expression, required iff Trigger == TriggerSchedule
	EventName      string // required iff Trigger == TriggerEvent
	Conditions     map[string]any
	Actions        []Action
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastExecuted   *time.Time
	ExecutionCount int64
}

// Clone returns a deep copy so callers can hand out snapshots
// without exposing the stored rule to mutation.
func (r *Rule) Clone() *Rule {
	c := *r
	if r.Conditions != nil {
		c.Conditions = make(map[string]any, len(r.Conditions))
		for k, v := range r.Conditions {
			c.Conditions[k] = v
		}
	}
	if r.Actions != nil {
		c.Actions = append([]Action(nil), r.Actions...)
	}
	if r.LastExecuted != nil {
		t := *r.LastExecuted
		c.LastExecuted = &t
	}
	return &c
}

// RuleSpec is the input to Registry.CreateRule.
type RuleSpec struct {
	Name        string
	Description string
	Trigger     Trigger
	Schedule    string
	EventName   string
	Conditions  map[string]any
	Actions     []Action
	Active      *bool // defaults to true when nil
}

// RulePatch is a partial update applied by Registry.UpdateRule.
// Nil fields are left unchanged.
type RulePatch struct {
	Name        *string
	Description *string
	Trigger     *Trigger
	Schedule    *string
	EventName   *string
	Conditions  map[string]any
	Actions     []Action
	Active      *bool
}

// RunContext carries per-run trigger metadata through the Coordinator.
type RunContext struct {
	Manual bool
	Event  string
}

// ExecutionResult is the immutable outcome of one rule run.
type ExecutionResult struct {
	ID            string
	RuleID        string
	RuleName      string
	StartTime     time.Time
	EndTime       time.Time
	Success       bool
	AffectedCount int
	Errors        []string
	Details       string
	Actions       []ActionOutcome
}

// ActionOutcome captures one action's partial success or failure,
// independent of its sibling actions in the same run.
type ActionOutcome struct {
	ActionName     Action
	ProcessedCount int
	Details        []string
}
