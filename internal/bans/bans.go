// Package bans decides whether an address may subscribe to a list.
//
// Ban entries live in two scopes: global (empty list ID) and per list.
// Within a scope, entries starting with '^' are case-insensitive regular
// expressions matched against the normalized address; all other entries
// match the normalized address exactly. Global entries are consulted before
// list entries, and patterns before exact entries.
package bans

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/roach88/listflow/internal/model"
)

// Store persists ban entries. Implemented by *store.Store.
type Store interface {
	AddBan(ctx context.Context, b model.Ban) error
	RemoveBan(ctx context.Context, b model.Ban) (bool, error)
	Bans(ctx context.Context, listID string) ([]model.Ban, error)
}

// Checker evaluates and manages ban entries.
type Checker struct {
	store  Store
	logger *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// NewChecker creates a Checker backed by s.
func NewChecker(s Store, opts ...Option) *Checker {
	c := &Checker{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsBanned reports whether email may not join listID.
func (c *Checker) IsBanned(ctx context.Context, listID, email string) (bool, error) {
	email = model.NormalizeEmail(email)
	for _, scope := range []string{"", listID} {
		entries, err := c.store.Bans(ctx, scope)
		if err != nil {
			return false, fmt.Errorf("load bans: %w", err)
		}
		if c.matchPatterns(entries, email) || matchExact(entries, email) {
			return true, nil
		}
		if scope == listID {
			break
		}
	}
	return false, nil
}

func (c *Checker) matchPatterns(entries []model.Ban, email string) bool {
	for _, b := range entries {
		if !b.IsPattern() {
			continue
		}
		re, err := compile(b.Email)
		if err != nil {
			c.logger.Warn("skipping malformed ban pattern", "list", b.ListID, "pattern", b.Email, "error", err)
			continue
		}
		if re.MatchString(email) {
			return true
		}
	}
	return false
}

func matchExact(entries []model.Ban, email string) bool {
	for _, b := range entries {
		if !b.IsPattern() && b.Email == email {
			return true
		}
	}
	return false
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// Ban adds an entry to listID ("" for global). Exact entries are
// normalized; patterns must compile.
func (c *Checker) Ban(ctx context.Context, listID, entry string) error {
	b, err := newBan(listID, entry)
	if err != nil {
		return err
	}
	return c.store.AddBan(ctx, b)
}

// Unban removes an entry. Reports whether it existed.
func (c *Checker) Unban(ctx context.Context, listID, entry string) (bool, error) {
	b, err := newBan(listID, entry)
	if err != nil {
		return false, err
	}
	return c.store.RemoveBan(ctx, b)
}

// List returns the entries of one scope in insertion order.
func (c *Checker) List(ctx context.Context, listID string) ([]model.Ban, error) {
	return c.store.Bans(ctx, listID)
}

func newBan(listID, entry string) (model.Ban, error) {
	b := model.Ban{ListID: listID, Email: entry}
	if b.IsPattern() {
		if _, err := compile(entry); err != nil {
			return model.Ban{}, fmt.Errorf("invalid ban pattern %q: %w", entry, err)
		}
		return b, nil
	}
	if err := model.ValidateEmail(entry); err != nil {
		return model.Ban{}, err
	}
	b.Email = model.NormalizeEmail(entry)
	return b, nil
}
