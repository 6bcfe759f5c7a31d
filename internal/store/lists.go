package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/listflow/internal/model"
)

// PutList inserts or updates a mailing list definition.
func (s *Store) PutList(ctx context.Context, l model.MailingList) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailing_lists
		(list_id, posting_address, display_name, subscription_policy, admin_immed_notify)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(list_id) DO UPDATE SET
			posting_address = excluded.posting_address,
			display_name = excluded.display_name,
			subscription_policy = excluded.subscription_policy,
			admin_immed_notify = excluded.admin_immed_notify
	`, l.ListID, model.NormalizeEmail(l.PostingAddress), l.DisplayName, string(l.SubscriptionPolicy), l.AdminImmedNotify)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("put list %s: %w", l.ListID, ErrConflict)
		}
		return fmt.Errorf("put list %s: %w", l.ListID, err)
	}
	return nil
}

// GetList returns the list with the given ID or ErrNotFound.
func (s *Store) GetList(ctx context.Context, listID string) (*model.MailingList, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT list_id, posting_address, display_name, subscription_policy, admin_immed_notify
		FROM mailing_lists WHERE list_id = ?
	`, listID)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get list %s: %w", listID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get list %s: %w", listID, err)
	}
	return l, nil
}

// Lists returns all mailing lists ordered by list ID.
func (s *Store) Lists(ctx context.Context) ([]model.MailingList, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT list_id, posting_address, display_name, subscription_policy, admin_immed_notify
		FROM mailing_lists ORDER BY list_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("lists: %w", err)
	}
	defer rows.Close()

	var lists []model.MailingList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("lists: %w", err)
		}
		lists = append(lists, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lists: %w", err)
	}
	return lists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanList(row rowScanner) (*model.MailingList, error) {
	var (
		l      model.MailingList
		policy string
	)
	if err := row.Scan(&l.ListID, &l.PostingAddress, &l.DisplayName, &policy, &l.AdminImmedNotify); err != nil {
		return nil, err
	}
	p, err := model.ParsePolicy(policy)
	if err != nil {
		return nil, err
	}
	l.SubscriptionPolicy = p
	return &l, nil
}
