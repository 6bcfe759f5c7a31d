package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Value kinds for pended_keyvalues.kind.
const (
	kindText  = "text"
	kindBytes = "bytes"
)

// encodeValue tags a pendable value so that decodeValue can reconstruct the
// exact bytes. Valid UTF-8 is stored verbatim; anything else is base64.
func encodeValue(v string) (kind, text string) {
	if utf8.ValidString(v) {
		return kindText, v
	}
	return kindBytes, base64.StdEncoding.EncodeToString([]byte(v))
}

// decodeValue reverses encodeValue.
func decodeValue(kind, text string) (string, error) {
	switch kind {
	case kindText:
		return text, nil
	case kindBytes:
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return "", fmt.Errorf("decode bytes value: %w", err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("unknown value kind %q", kind)
}

// formatTime renders a timestamp as ISO-8601 UTC TEXT.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses TEXT produced by formatTime.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// nullTime converts an optional timestamp to a nullable column value.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseNullTime parses a nullable timestamp column.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullUUID maps uuid.Nil to NULL.
func nullUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// parseNullUUID parses a nullable UUID column.
func parseNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse uuid %q: %w", ns.String, err)
	}
	return &id, nil
}
