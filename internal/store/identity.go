package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/model"
)

// CreateUser inserts a user record.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, preferred_address, created_on)
		VALUES (?, ?, ?, ?)
	`, u.ID.String(), u.DisplayName, nullString(u.PreferredAddress), formatTime(u.CreatedOn))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.ID, ErrConflict)
		}
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser returns the user with the given ID or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var (
		displayName string
		preferred   sql.NullString
		createdOn   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, preferred_address, created_on
		FROM users WHERE id = ?
	`, id.String()).Scan(&displayName, &preferred, &createdOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	created, err := parseTime(createdOn)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &model.User{
		ID:               id,
		DisplayName:      displayName,
		PreferredAddress: preferred.String,
		CreatedOn:        created,
	}, nil
}

// SetPreferredAddress records email as the user's preferred address.
// The address must already be linked to the user.
func (s *Store) SetPreferredAddress(ctx context.Context, userID uuid.UUID, email string) error {
	email = model.NormalizeEmail(email)

	var owner sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM addresses WHERE email = ?`, email).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("set preferred address %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("set preferred address %s: %w", email, err)
	}
	if !owner.Valid || owner.String != userID.String() {
		return fmt.Errorf("set preferred address %s: address is not linked to user %s", email, userID)
	}

	return s.updateOne(ctx, "set preferred address", `
		UPDATE users SET preferred_address = ? WHERE id = ?
	`, email, userID.String())
}

// CreateAddress inserts an address record. The email is normalized.
// Returns ErrConflict if the address is already registered.
func (s *Store) CreateAddress(ctx context.Context, a model.Address) error {
	email := model.NormalizeEmail(a.Email)
	var userID sql.NullString
	if a.UserID != nil {
		userID = nullUUID(*a.UserID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (email, display_name, user_id, verified_on, registered_on)
		VALUES (?, ?, ?, ?, ?)
	`, email, a.DisplayName, userID, nullTime(a.VerifiedOn), formatTime(a.RegisteredOn))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create address %s: %w", email, ErrConflict)
		}
		return fmt.Errorf("create address %s: %w", email, err)
	}
	return nil
}

// GetAddress returns the address record for email or ErrNotFound.
func (s *Store) GetAddress(ctx context.Context, email string) (*model.Address, error) {
	email = model.NormalizeEmail(email)
	var (
		displayName  string
		userID       sql.NullString
		verifiedOn   sql.NullString
		registeredOn string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, user_id, verified_on, registered_on
		FROM addresses WHERE email = ?
	`, email).Scan(&displayName, &userID, &verifiedOn, &registeredOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get address %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get address %s: %w", email, err)
	}

	addr := &model.Address{Email: email, DisplayName: displayName}
	if addr.UserID, err = parseNullUUID(userID); err != nil {
		return nil, fmt.Errorf("get address %s: %w", email, err)
	}
	if addr.VerifiedOn, err = parseNullTime(verifiedOn); err != nil {
		return nil, fmt.Errorf("get address %s: %w", email, err)
	}
	if addr.RegisteredOn, err = parseTime(registeredOn); err != nil {
		return nil, fmt.Errorf("get address %s: %w", email, err)
	}
	return addr, nil
}

// LinkAddress attaches an address to a user.
func (s *Store) LinkAddress(ctx context.Context, email string, userID uuid.UUID) error {
	return s.updateOne(ctx, "link address", `
		UPDATE addresses SET user_id = ? WHERE email = ?
	`, userID.String(), model.NormalizeEmail(email))
}

// VerifyAddress stamps the address as verified at the given time.
func (s *Store) VerifyAddress(ctx context.Context, email string, at time.Time) error {
	return s.updateOne(ctx, "verify address", `
		UPDATE addresses SET verified_on = ? WHERE email = ?
	`, formatTime(at), model.NormalizeEmail(email))
}

// updateOne runs an UPDATE that must touch exactly one row.
func (s *Store) updateOne(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
