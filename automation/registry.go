package automation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/liamcoop/automations/internal/logger"
)

// Registry owns rule definitions and is the only component permitted to
// create or destroy schedule handles, which centrally enforces the
// one-handle-per-rule invariant. Construct one per service instance and
// inject it; there is no package-level singleton, so tests can run
// isolated registries concurrently.
type Registry struct {
	store       RuleStore
	scheduler   Scheduler
	coordinator *Coordinator
	execLog     ExecutionLog
	// mu serializes handle create/destroy across CreateRule, UpdateRule
	// and DeleteRule so concurrent CRUD on one rule cannot race a handle
	// into existence twice.
	mu sync.Mutex
}

// NewRegistry creates a registry over the given collaborators.
func NewRegistry(store RuleStore, scheduler Scheduler, coordinator *Coordinator, execLog ExecutionLog) *Registry {
	return &Registry{
		store:       store,
		scheduler:   scheduler,
		coordinator: coordinator,
		execLog:     execLog,
	}
}

// CreateRule validates the spec, persists the rule, and registers a
// schedule handle when the rule is active and schedule-triggered.
// isActive defaults to true.
func (reg *Registry) CreateRule(spec RuleSpec) (*Rule, error) {
	active := true
	if spec.Active != nil {
		active = *spec.Active
	}

	rule := &Rule{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Description: spec.Description,
		Trigger:     spec.Trigger,
		Schedule:    spec.Schedule,
		EventName:   spec.EventName,
		Conditions:  spec.Conditions,
		Actions:     append([]Action(nil), spec.Actions...),
		Active:      active,
	}

	if err := validateRule(rule); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if err := reg.store.Add(rule); err != nil {
		return nil, err
	}

	if rule.Active && rule.Trigger == TriggerSchedule {
		if err := reg.scheduler.Register(rule.ID, rule.Schedule, reg.firing(rule.ID)); err != nil {
			// The cron expression already passed validation, so this is
			// a scheduler fault; undo the create rather than persist a
			// rule that will never fire.
			_ = reg.store.Delete(rule.ID)
			return nil, err
		}
	}

	return rule.Clone(), nil
}

// UpdateRule applies a partial update. Any existing schedule handle is
// torn down before the patch is applied so a stale handle cannot fire
// against half-updated state; a handle for the new definition is
// registered afterwards when applicable.
func (reg *Registry) UpdateRule(id string, patch RulePatch) (*Rule, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	existing, err := reg.store.Get(id)
	if err != nil {
		return nil, err
	}

	reg.scheduler.Deregister(id)

	merged := mergePatch(existing, patch)
	if err := validateRule(merged); err != nil {
		// The patch was rejected, so the previous definition stands;
		// restore its handle.
		reg.restoreHandle(existing)
		return nil, err
	}

	if err := reg.store.Update(merged); err != nil {
		reg.restoreHandle(existing)
		return nil, err
	}

	if merged.Active && merged.Trigger == TriggerSchedule {
		if err := reg.scheduler.Register(merged.ID, merged.Schedule, reg.firing(merged.ID)); err != nil {
			return nil, err
		}
	}

	return reg.store.Get(id)
}

// DeleteRule tears down the rule's schedule handle, then removes the
// definition.
func (reg *Registry) DeleteRule(id string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.scheduler.Deregister(id)
	return reg.store.Delete(id)
}

// GetRule returns a snapshot of one rule.
func (reg *Registry) GetRule(id string) (*Rule, error) {
	return reg.store.Get(id)
}

// GetAllRules returns a snapshot of all rules, never live references.
func (reg *Registry) GetAllRules() ([]*Rule, error) {
	return reg.store.List()
}

// TriggerRule runs a rule manually, synchronously relative to the caller.
// The rule must be active.
func (reg *Registry) TriggerRule(ctx context.Context, id string, runCtx RunContext) (*ExecutionResult, error) {
	rule, err := reg.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return nil, &InactiveRuleError{RuleID: id}
	}

	runCtx.Manual = true
	return reg.coordinator.Run(ctx, rule, runCtx), nil
}

// HandleEvent runs every active event-triggered rule subscribed to the
// event. Each run is independently error-bounded; a failing rule never
// affects its siblings.
func (reg *Registry) HandleEvent(ctx context.Context, eventName string) []*ExecutionResult {
	rules, err := reg.store.List()
	if err != nil {
		logger.Error("failed to list rules for event", "event", eventName, "error", err)
		return nil
	}

	var results []*ExecutionResult
	for _, rule := range rules {
		if rule.Trigger != TriggerEvent || !rule.Active || rule.EventName != eventName {
			continue
		}
		results = append(results, reg.coordinator.Run(ctx, rule, RunContext{Event: eventName}))
	}
	return results
}

// GetExecutionHistory returns one page of a rule's run outcomes, newest
// first, plus the total count.
func (reg *Registry) GetExecutionHistory(ctx context.Context, ruleID string, page, limit int) ([]*ExecutionResult, int, error) {
	if _, err := reg.store.Get(ruleID); err != nil {
		return nil, 0, err
	}
	return reg.execLog.History(ctx, ruleID, page, limit)
}

// LoadScheduled registers handles for every active schedule-triggered rule
// already in the store. Called once at service startup.
func (reg *Registry) LoadScheduled() error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rules, err := reg.store.List()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if !rule.Active || rule.Trigger != TriggerSchedule {
			continue
		}
		if err := reg.scheduler.Register(rule.ID, rule.Schedule, reg.firing(rule.ID)); err != nil {
			logger.Error("failed to schedule rule", "rule", rule.Name, "error", err)
		}
	}
	return nil
}

// firing builds the timer callback for a rule id. The rule is re-read at
// fire time so a firing always sees the latest definition, and a rule
// deactivated after registration is skipped. The Coordinator never lets a
// failure escape, so nothing here can propagate into the timer runner.
func (reg *Registry) firing(id string) func() {
	return func() {
		rule, err := reg.store.Get(id)
		if err != nil {
			logger.Warn("scheduled firing for missing rule", "rule_id", id, "error", err)
			return
		}
		if !rule.Active {
			return
		}
		reg.coordinator.Run(context.Background(), rule, RunContext{})
	}
}

// restoreHandle re-registers the handle for a definition whose update was
// rejected, so a failed patch does not silently unschedule a valid rule.
func (reg *Registry) restoreHandle(rule *Rule) {
	if !rule.Active || rule.Trigger != TriggerSchedule {
		return
	}
	if err := reg.scheduler.Register(rule.ID, rule.Schedule, reg.firing(rule.ID)); err != nil {
		logger.Error("failed to restore schedule handle", "rule", rule.Name, "error", err)
	}
}

// mergePatch applies non-nil patch fields over a copy of the existing rule.
func mergePatch(existing *Rule, patch RulePatch) *Rule {
	merged := existing.Clone()

	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.Trigger != nil {
		merged.Trigger = *patch.Trigger
	}
	if patch.Schedule != nil {
		merged.Schedule = *patch.Schedule
	}
	if patch.EventName != nil {
		merged.EventName = *patch.EventName
	}
	if patch.Conditions != nil {
		merged.Conditions = make(map[string]any, len(patch.Conditions))
		for k, v := range patch.Conditions {
			merged.Conditions[k] = v
		}
	}
	if patch.Actions != nil {
		merged.Actions = append([]Action(nil), patch.Actions...)
	}
	if patch.Active != nil {
		merged.Active = *patch.Active
	}

	return merged
}
