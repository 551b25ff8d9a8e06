package automation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresEntityStore implements EntityStore backed by the users table.
type PostgresEntityStore struct {
	db *sql.DB
}

// NewPostgresEntityStore creates a PostgreSQL-backed entity store.
func NewPostgresEntityStore(db *sql.DB) *PostgresEntityStore {
	return &PostgresEntityStore{db: db}
}

const entityColumns = `id, email, username, role, is_verified, is_active, is_suspended,
	suspended_reason, suspended_at, created_at, last_active_at`

// Count returns the number of users matching q.
func (s *PostgresEntityStore) Count(ctx context.Context, q Query) (int, error) {
	where, args := buildWhere(q)

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Find returns all users matching q.
func (s *PostgresEntityStore) Find(ctx context.Context, q Query) ([]Entity, error) {
	where, args := buildWhere(q)

	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM users`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var reason sql.NullString
		var suspendedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Email, &e.Username, &e.Role, &e.Verified, &e.Active,
			&e.Suspended, &reason, &suspendedAt, &e.CreatedAt, &e.LastActiveAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if reason.Valid {
			e.SuspendedReason = reason.String
		}
		if suspendedAt.Valid {
			t := suspendedAt.Time
			e.SuspendedAt = &t
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return entities, nil
}

// UpdateMany applies patch to the listed users and returns the number of
// rows modified.
func (s *PostgresEntityStore) UpdateMany(ctx context.Context, ids []string, patch EntityPatch) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var sets []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Active != nil {
		sets = append(sets, "is_active = "+next(*patch.Active))
	}
	if patch.Suspended != nil {
		sets = append(sets, "is_suspended = "+next(*patch.Suspended))
	}
	if patch.SuspendedReason != nil {
		sets = append(sets, "suspended_reason = "+next(*patch.SuspendedReason))
	}
	if patch.SuspendedAt != nil {
		sets = append(sets, "suspended_at = "+next(*patch.SuspendedAt))
	}
	if len(sets) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = ANY(%s)",
		strings.Join(sets, ", "), next(pq.Array(ids)))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update users: %w", err)
	}

	modified, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(modified), nil
}

// DeleteMany removes the listed users. Already-deleted ids simply do not
// count toward the result.
func (s *PostgresEntityStore) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete users: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// buildWhere translates a compiled query into a WHERE fragment with
// positional args. An empty query matches everything.
func buildWhere(q Query) (string, []any) {
	if len(q.Clauses) == 0 {
		return "", nil
	}

	var conds []string
	var args []any
	for _, clause := range q.Clauses {
		switch c := clause.(type) {
		case TimeBefore:
			args = append(args, c.Cutoff)
			conds = append(conds, fmt.Sprintf("%s < $%d", c.Field, len(args)))
		case Equals:
			args = append(args, c.Value)
			conds = append(conds, fmt.Sprintf("%s = $%d", c.Field, len(args)))
		case NotInSet:
			args = append(args, pq.Array(c.Values))
			conds = append(conds, fmt.Sprintf("NOT (%s = ANY($%d))", c.Field, len(args)))
		default:
			panic(fmt.Sprintf("unhandled clause type %T", clause))
		}
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}
