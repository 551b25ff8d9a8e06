package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresExecutionLog implements ExecutionLog backed by the
// rule_executions table.
type PostgresExecutionLog struct {
	db *sql.DB
}

// NewPostgresExecutionLog creates a PostgreSQL-backed execution log.
func NewPostgresExecutionLog(db *sql.DB) *PostgresExecutionLog {
	return &PostgresExecutionLog{db: db}
}

// Append inserts a finalized result.
func (l *PostgresExecutionLog) Append(ctx context.Context, result *ExecutionResult) error {
	actions, err := json.Marshal(result.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal action outcomes: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO rule_executions
			(id, rule_id, rule_name, start_time, end_time, success,
			 affected_count, errors, details, actions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, result.ID, result.RuleID, result.RuleName, result.StartTime,
		result.EndTime, result.Success, result.AffectedCount,
		pq.Array(result.Errors), result.Details, actions)

	if err != nil {
		return fmt.Errorf("failed to insert execution result: %w", err)
	}

	return nil
}

// History returns one page of a rule's results, newest first.
func (l *PostgresExecutionLog) History(ctx context.Context, ruleID string, page, limit int) ([]*ExecutionResult, int, error) {
	page, limit = normalizePage(page, limit)

	var total int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rule_executions WHERE rule_id = $1
	`, ruleID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, rule_id, rule_name, start_time, end_time, success,
		       affected_count, errors, details, actions
		FROM rule_executions
		WHERE rule_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, ruleID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var results []*ExecutionResult
	for rows.Next() {
		var r ExecutionResult
		var errs pq.StringArray
		var actions []byte
		if err := rows.Scan(&r.ID, &r.RuleID, &r.RuleName, &r.StartTime,
			&r.EndTime, &r.Success, &r.AffectedCount, &errs, &r.Details,
			&actions); err != nil {
			return nil, 0, fmt.Errorf("failed to scan execution: %w", err)
		}
		r.Errors = []string(errs)
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &r.Actions); err != nil {
				return nil, 0, fmt.Errorf("invalid action outcomes for execution %s: %w", r.ID, err)
			}
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating executions: %w", err)
	}

	return results, total, nil
}
