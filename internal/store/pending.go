package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// InsertPending stores a new pending record.
// Returns ErrConflict if the token is already in use, so the caller can
// retry with a fresh token.
//
// Values are written in key order; any value that is not valid UTF-8 is
// tagged and base64-encoded so ConfirmPending returns the exact bytes.
func (s *Store) InsertPending(ctx context.Context, token string, expiration time.Time, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert pending: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO pended (token, expiration)
		VALUES (?, ?)
	`, token, expiration.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert pending: %w", ErrConflict)
		}
		return fmt.Errorf("insert pending: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert pending: last insert id: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for pos, k := range keys {
		kind, text := encodeValue(values[k])
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pended_keyvalues (pended_id, position, key, value, kind)
			VALUES (?, ?, ?, ?, ?)
		`, id, pos, k, text, kind)
		if err != nil {
			return fmt.Errorf("insert pending: value %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert pending: commit: %w", err)
	}
	return nil
}

// ConfirmPending returns the values stored under token, or nil if there is
// no such record. With expunge set the record is deleted in the same
// transaction; if another caller deleted it first, the result is nil.
func (s *Store) ConfirmPending(ctx context.Context, token string, expunge bool) (map[string]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("confirm pending: begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM pended WHERE token = ?`, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("confirm pending: lookup: %w", err)
	}

	values, err := readPendingValues(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("confirm pending: %w", err)
	}

	if expunge {
		result, err := tx.ExecContext(ctx, `DELETE FROM pended WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("confirm pending: delete: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("confirm pending: rows affected: %w", err)
		}
		if n == 0 {
			// Lost the race to a concurrent expunge.
			return nil, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("confirm pending: commit: %w", err)
	}
	return values, nil
}

func readPendingValues(ctx context.Context, tx *sql.Tx, id int64) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT key, value, kind FROM pended_keyvalues
		WHERE pended_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, text, kind string
		if err := rows.Scan(&key, &text, &kind); err != nil {
			return nil, fmt.Errorf("read values: scan: %w", err)
		}
		v, err := decodeValue(kind, text)
		if err != nil {
			return nil, fmt.Errorf("read values: key %q: %w", key, err)
		}
		values[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	return values, nil
}

// EvictPending deletes every record whose expiration is strictly before now.
// Returns the number of records removed.
func (s *Store) EvictPending(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pended WHERE expiration < ?
	`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("evict pending: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict pending: rows affected: %w", err)
	}
	return n, nil
}

// PendingTokens returns a point-in-time snapshot of all live tokens in
// insertion order.
func (s *Store) PendingTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM pended ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("pending tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("pending tokens: scan: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending tokens: %w", err)
	}
	return tokens, nil
}

// PendingExpiration returns the expiration of token, or false if absent.
func (s *Store) PendingExpiration(ctx context.Context, token string) (time.Time, bool, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx, `SELECT expiration FROM pended WHERE token = ?`, token).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("pending expiration: %w", err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

// CountPending returns the number of live pending records.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM pended`)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}
