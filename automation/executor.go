package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/liamcoop/automations/internal/logger"
)

const (
	// defaultBatchSize bounds one store call for non-destructive actions.
	defaultBatchSize = 100
	// destructiveBatchSize is used for irreversible actions.
	destructiveBatchSize = 25
)

// Executor applies one named action to a matched entity set in bounded
// batches. A failed batch is recorded in the outcome and processing
// continues with the next batch; one bad batch never aborts the action.
type Executor struct {
	entities EntityStore
	notifier Notifier
	// ownerRecipient receives the aggregate notify-owner message.
	ownerRecipient string
	batchSize      int
	smallBatchSize int
}

// NewExecutor creates an executor over the given collaborators.
func NewExecutor(entities EntityStore, notifier Notifier, ownerRecipient string) *Executor {
	return &Executor{
		entities:       entities,
		notifier:       notifier,
		ownerRecipient: ownerRecipient,
		batchSize:      defaultBatchSize,
		smallBatchSize: destructiveBatchSize,
	}
}

// Execute runs one action against the matched set. An action name outside
// the closed set fails with UnknownActionError; the Coordinator catches it
// and records it without aborting sibling actions.
func (ex *Executor) Execute(ctx context.Context, action Action, entities []Entity, rule *Rule) (ActionOutcome, error) {
	outcome := ActionOutcome{ActionName: action}

	switch action {
	case ActionSuspend:
		ex.suspend(ctx, entities, rule, &outcome)
	case ActionDelete:
		ex.delete(ctx, entities, rule, &outcome)
	case ActionNotifyOwner:
		ex.notifyOwner(ctx, entities, rule, &outcome)
	case ActionSendWelcome:
		ex.sendWelcome(ctx, entities, &outcome)
	case ActionLogOnly:
		ex.logOnly(entities, rule, &outcome)
	default:
		return outcome, &UnknownActionError{Action: action}
	}

	return outcome, nil
}

// suspend marks entities inactive with reason and timestamp. Idempotent:
// suspending an already-suspended entity converges to the same state.
func (ex *Executor) suspend(ctx context.Context, entities []Entity, rule *Rule, outcome *ActionOutcome) {
	now := time.Now()
	active := false
	suspended := true
	reason := fmt.Sprintf("suspended by automation rule %q", rule.Name)
	patch := EntityPatch{
		Active:          &active,
		Suspended:       &suspended,
		SuspendedReason: &reason,
		SuspendedAt:     &now,
	}

	for i, batch := range batches(entityIDs(entities), ex.batchSize) {
		modified, err := ex.entities.UpdateMany(ctx, batch, patch)
		if err != nil {
			outcome.Details = append(outcome.Details,
				fmt.Sprintf("batch %d (%d entities) failed: %v", i, len(batch), err))
			continue
		}
		outcome.ProcessedCount += modified
	}
}

// delete is irreversible: smallest batches, every batch logged.
func (ex *Executor) delete(ctx context.Context, entities []Entity, rule *Rule, outcome *ActionOutcome) {
	for i, batch := range batches(entityIDs(entities), ex.smallBatchSize) {
		deleted, err := ex.entities.DeleteMany(ctx, batch)
		if err != nil {
			logger.Error("delete batch failed",
				"rule", rule.Name, "batch", i, "size", len(batch), "error", err)
			outcome.Details = append(outcome.Details,
				fmt.Sprintf("batch %d (%d entities) failed: %v", i, len(batch), err))
			continue
		}
		logger.Info("deleted entities",
			"rule", rule.Name, "batch", i, "requested", len(batch), "deleted", deleted)
		outcome.ProcessedCount += deleted
	}
}

// notifyOwner sends one aggregate message per run, not per entity.
func (ex *Executor) notifyOwner(ctx context.Context, entities []Entity, rule *Rule, outcome *ActionOutcome) {
	message := fmt.Sprintf("automation rule %q matched %d entities", rule.Name, len(entities))
	if err := ex.notifier.Send(ctx, ex.ownerRecipient, message); err != nil {
		outcome.Details = append(outcome.Details,
			fmt.Sprintf("owner notification failed: %v", err))
		return
	}
	outcome.ProcessedCount = len(entities)
}

// sendWelcome dispatches one message per matched entity, collecting
// per-entity failures individually.
func (ex *Executor) sendWelcome(ctx context.Context, entities []Entity, outcome *ActionOutcome) {
	for _, batch := range batchEntities(entities, ex.batchSize) {
		for _, e := range batch {
			message := fmt.Sprintf("Welcome to the platform, %s!", e.Username)
			if err := ex.notifier.Send(ctx, e.Email, message); err != nil {
				outcome.Details = append(outcome.Details,
					fmt.Sprintf("welcome to %s failed: %v", e.ID, err))
				continue
			}
			outcome.ProcessedCount++
		}
	}
}

// logOnly records the matched set without touching it.
func (ex *Executor) logOnly(entities []Entity, rule *Rule, outcome *ActionOutcome) {
	logger.Info("rule matched entities",
		"rule", rule.Name, "matched", len(entities))
	outcome.ProcessedCount = len(entities)
}

func entityIDs(entities []Entity) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

func batches(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func batchEntities(entities []Entity, size int) [][]Entity {
	if size < 1 {
		size = 1
	}
	var out [][]Entity
	for start := 0; start < len(entities); start += size {
		end := start + size
		if end > len(entities) {
			end = len(entities)
		}
		out = append(out, entities[start:end])
	}
	return out
}
