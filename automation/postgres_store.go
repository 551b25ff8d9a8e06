package automation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// Add inserts a new rule into the database
func (s *PostgresRuleStore) Add(rule *Rule) error {
	// Check if rule already exists
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM automation_rules WHERE id = $1)
	`, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO automation_rules
			(id, name, description, trigger_type, schedule, event_name, conditions,
			 actions, active, created_at, updated_at, execution_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0)
	`, rule.ID, rule.Name, rule.Description, string(rule.Trigger), rule.Schedule,
		rule.EventName, conditions, pq.Array(actionStrings(rule.Actions)),
		rule.Active, rule.CreatedAt, rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, trigger_type, schedule, event_name, conditions,
		       actions, active, created_at, updated_at, last_executed, execution_count
		FROM automation_rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{RuleID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// List returns all rules ordered by creation time
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, trigger_type, schedule, event_name, conditions,
		       actions, active, created_at, updated_at, last_executed, execution_count
		FROM automation_rules
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule's definition. Execution metadata is
// only written through RecordExecution.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	rule.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE automation_rules
		SET name = $1, description = $2, trigger_type = $3, schedule = $4,
		    event_name = $5, conditions = $6, actions = $7, active = $8,
		    updated_at = $9
		WHERE id = $10
	`, rule.Name, rule.Description, string(rule.Trigger), rule.Schedule,
		rule.EventName, conditions, pq.Array(actionStrings(rule.Actions)),
		rule.Active, rule.UpdatedAt, rule.ID)

	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{RuleID: rule.ID}
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM automation_rules
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{RuleID: id}
	}

	return nil
}

// RecordExecution bumps the execution counter in a single UPDATE so
// concurrent finalizes on the same rule cannot lose an increment.
func (s *PostgresRuleStore) RecordExecution(id string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE automation_rules
		SET execution_count = execution_count + 1, last_executed = $1
		WHERE id = $2
	`, at, id)

	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{RuleID: id}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var trigger string
	var conditions []byte
	var actions pq.StringArray
	var lastExecuted sql.NullTime

	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &trigger,
		&rule.Schedule, &rule.EventName, &conditions, &actions, &rule.Active,
		&rule.CreatedAt, &rule.UpdatedAt, &lastExecuted, &rule.ExecutionCount)
	if err != nil {
		return nil, err
	}

	rule.Trigger = Trigger(trigger)
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("invalid conditions for rule %s: %w", rule.ID, err)
		}
	}
	for _, a := range actions {
		rule.Actions = append(rule.Actions, Action(a))
	}
	if lastExecuted.Valid {
		t := lastExecuted.Time
		rule.LastExecuted = &t
	}

	return &rule, nil
}

func actionStrings(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
