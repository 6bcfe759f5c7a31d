package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/listflow/internal/model"
)

// SaveWorkflowState writes the state for (Name, Token), replacing any
// previous record for the same pair.
func (s *Store) SaveWorkflowState(ctx context.Context, st model.WorkflowState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (name, token, step, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, token) DO UPDATE SET
			step = excluded.step,
			data = excluded.data
	`, st.Name, st.Token, nullString(st.Step), string(st.Data))
	if err != nil {
		return fmt.Errorf("save workflow state: %w", err)
	}
	return nil
}

// RestoreWorkflowState removes and returns the state for (name, token).
// Returns nil if there is none. The read and the delete are one statement,
// so of two concurrent restores exactly one sees the record.
func (s *Store) RestoreWorkflowState(ctx context.Context, name, token string) (*model.WorkflowState, error) {
	var (
		step sql.NullString
		data string
	)
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM workflow_states
		WHERE name = ? AND token = ?
		RETURNING step, data
	`, name, token).Scan(&step, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore workflow state: %w", err)
	}

	return &model.WorkflowState{
		Name:  name,
		Token: token,
		Step:  step.String,
		Data:  []byte(data),
	}, nil
}

// DiscardWorkflowState deletes the state for (name, token).
// Reports whether a record existed.
func (s *Store) DiscardWorkflowState(ctx context.Context, name, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_states WHERE name = ? AND token = ?
	`, name, token)
	if err != nil {
		return false, fmt.Errorf("discard workflow state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("discard workflow state: rows affected: %w", err)
	}
	return n > 0, nil
}

// CountWorkflowStates returns the number of saved workflow states.
func (s *Store) CountWorkflowStates(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM workflow_states`)
	if err != nil {
		return 0, fmt.Errorf("count workflow states: %w", err)
	}
	return n, nil
}

// PurgeOrphanWorkflowStates deletes states of workflow name whose token is
// no longer pending, e.g. after eviction. Returns the number removed.
func (s *Store) PurgeOrphanWorkflowStates(ctx context.Context, name string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_states
		WHERE name = ? AND token NOT IN (SELECT token FROM pended)
	`, name)
	if err != nil {
		return 0, fmt.Errorf("purge workflow states: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge workflow states: rows affected: %w", err)
	}
	return n, nil
}
