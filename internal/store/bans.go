package store

import (
	"context"
	"fmt"

	"github.com/roach88/listflow/internal/model"
)

// AddBan inserts a ban entry. Adding an existing entry is a no-op.
func (s *Store) AddBan(ctx context.Context, b model.Ban) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bans (list_id, email) VALUES (?, ?)
		ON CONFLICT(list_id, email) DO NOTHING
	`, b.ListID, b.Email)
	if err != nil {
		return fmt.Errorf("add ban %s: %w", b.Email, err)
	}
	return nil
}

// RemoveBan deletes a ban entry. Reports whether one existed.
func (s *Store) RemoveBan(ctx context.Context, b model.Ban) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bans WHERE list_id = ? AND email = ?
	`, b.ListID, b.Email)
	if err != nil {
		return false, fmt.Errorf("remove ban %s: %w", b.Email, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove ban: rows affected: %w", err)
	}
	return n > 0, nil
}

// Bans returns the entries of one scope in insertion order.
// An empty listID selects the global bans.
func (s *Store) Bans(ctx context.Context, listID string) ([]model.Ban, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT list_id, email FROM bans WHERE list_id = ? ORDER BY rowid ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("bans: %w", err)
	}
	defer rows.Close()

	var bans []model.Ban
	for rows.Next() {
		var b model.Ban
		if err := rows.Scan(&b.ListID, &b.Email); err != nil {
			return nil, fmt.Errorf("bans: scan: %w", err)
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bans: %w", err)
	}
	return bans, nil
}
