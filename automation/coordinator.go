package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/automations/internal/logger"
)

// Coordinator orchestrates one end-to-end rule run: compile conditions,
// query the entity store, execute actions in declared order, finalize the
// outcome. Run never returns an error and never panics outward, so it is
// safe to invoke directly from a timer callback.
type Coordinator struct {
	entities EntityStore
	executor *Executor
	log      ExecutionLog
	store    RuleStore
}

// NewCoordinator creates a coordinator over the given collaborators.
func NewCoordinator(entities EntityStore, executor *Executor, log ExecutionLog, store RuleStore) *Coordinator {
	return &Coordinator{
		entities: entities,
		executor: executor,
		log:      log,
		store:    store,
	}
}

// Run evaluates the rule's conditions against a single as-of instant and
// applies its actions. The result is always finalized and written to the
// execution log, even when compile or query fails: a failing run must never
// vanish without trace.
func (c *Coordinator) Run(ctx context.Context, rule *Rule, runCtx RunContext) *ExecutionResult {
	asOf := time.Now()
	result := &ExecutionResult{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		StartTime: asOf,
		Success:   true,
	}
	defer c.finalize(ctx, rule, result)

	compiled, err := CompileConditions(rule.Conditions, asOf)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("compile: %v", err))
		return result
	}

	matched, err := c.entities.Find(ctx, compiled.Query)
	if err != nil {
		storeErr := &StoreError{Op: "find", Err: err}
		result.Success = false
		result.Errors = append(result.Errors, storeErr.Error())
		return result
	}

	if compiled.Filter != nil {
		matched = c.applyFilter(rule, compiled.Filter, matched, result)
	}

	if len(matched) == 0 {
		// Empty match is success, not an error.
		result.Details = "no entities matched"
		return result
	}

	// affectedCount is the size of the matched set in scope for the run,
	// not a sum of per-action processed counts.
	result.AffectedCount = len(matched)

	for _, action := range rule.Actions {
		outcome, err := c.executor.Execute(ctx, action, matched, rule)
		if err != nil {
			// Action-level failure: recorded, sibling actions still run.
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("action %s: %v", action, err))
		}
		result.Actions = append(result.Actions, outcome)
	}

	if runCtx.Manual {
		result.Details = "triggered manually"
	} else if runCtx.Event != "" {
		result.Details = fmt.Sprintf("triggered by event %s", runCtx.Event)
	}

	return result
}

// applyFilter narrows the matched set through the expression condition.
// An entity whose evaluation errors is excluded and noted, but does not
// fail the run: expression errors against a single malformed record should
// not block the rest of the population.
func (c *Coordinator) applyFilter(rule *Rule, filter *EntityFilter, matched []Entity, result *ExecutionResult) []Entity {
	filtered := matched[:0]
	for _, e := range matched {
		ok, err := filter.Match(e)
		if err != nil {
			logger.Warn("expression condition failed for entity",
				"rule", rule.Name, "entity", e.ID, "error", err)
			continue
		}
		if ok {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// finalize stamps the end time, appends to the execution log, and records
// execution metadata on the rule. A log-append failure is logged and
// discarded; it never propagates into the run.
func (c *Coordinator) finalize(ctx context.Context, rule *Rule, result *ExecutionResult) {
	result.EndTime = time.Now()

	if err := c.log.Append(ctx, result); err != nil {
		logger.Warn("failed to append execution result",
			"rule", rule.Name, "execution", result.ID, "error", err)
	}

	if err := c.store.RecordExecution(rule.ID, result.EndTime); err != nil {
		// The rule may have been deleted while the run was in flight.
		logger.Warn("failed to record execution metadata",
			"rule", rule.Name, "error", err)
	}
}
