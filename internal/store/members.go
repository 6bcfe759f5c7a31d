package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/model"
)

const memberColumns = `id, list_id, email, user_id, role, subscribed_by, subscribed_on`

// AddMember inserts a roster entry.
// Returns ErrConflict if the email already holds that role on the list.
func (s *Store) AddMember(ctx context.Context, m model.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID.String(),
		m.ListID,
		model.NormalizeEmail(m.Email),
		nullUUID(m.UserID),
		string(m.Role),
		string(m.SubscribedBy),
		formatTime(m.SubscribedOn),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("add member %s to %s: %w", m.Email, m.ListID, ErrConflict)
		}
		return fmt.Errorf("add member %s to %s: %w", m.Email, m.ListID, err)
	}
	return nil
}

// GetMember returns the roster entry for (listID, email, role) or ErrNotFound.
func (s *Store) GetMember(ctx context.Context, listID, email string, role model.MemberRole) (*model.Member, error) {
	email = model.NormalizeEmail(email)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE list_id = ? AND email = ? AND role = ?
	`, listID, email, string(role))
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get member %s of %s: %w", email, listID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s of %s: %w", email, listID, err)
	}
	return m, nil
}

// IsMember reports whether email holds role on the list.
func (s *Store) IsMember(ctx context.Context, listID, email string, role model.MemberRole) (bool, error) {
	n, err := s.count(ctx, `
		SELECT COUNT(*) FROM members WHERE list_id = ? AND email = ? AND role = ?
	`, listID, model.NormalizeEmail(email), string(role))
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return n > 0, nil
}

// Members returns the list's roster for role in subscription order.
func (s *Store) Members(ctx context.Context, listID string, role model.MemberRole) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE list_id = ? AND role = ?
		ORDER BY subscribed_on ASC, email ASC
	`, listID, string(role))
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", listID, err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("members of %s: %w", listID, err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("members of %s: %w", listID, err)
	}
	return members, nil
}

// RemoveMember deletes a roster entry. Reports whether one existed.
func (s *Store) RemoveMember(ctx context.Context, listID, email string, role model.MemberRole) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM members WHERE list_id = ? AND email = ? AND role = ?
	`, listID, model.NormalizeEmail(email), string(role))
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove member: rows affected: %w", err)
	}
	return n > 0, nil
}

func scanMember(row rowScanner) (*model.Member, error) {
	var (
		m                        model.Member
		id, role, by, subscribed string
		userID                   sql.NullString
	)
	if err := row.Scan(&id, &m.ListID, &m.Email, &userID, &role, &by, &subscribed); err != nil {
		return nil, err
	}

	var err error
	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse member id %q: %w", id, err)
	}
	uid, err := parseNullUUID(userID)
	if err != nil {
		return nil, err
	}
	if uid != nil {
		m.UserID = *uid
	}
	if m.Role, err = model.ParseRole(role); err != nil {
		return nil, err
	}
	m.SubscribedBy = model.SubscriberKind(by)
	if m.SubscribedOn, err = parseTime(subscribed); err != nil {
		return nil, err
	}
	return &m, nil
}
