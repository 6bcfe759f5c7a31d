package pending

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/listflow/internal/store"
)

// MaxTokenAttempts bounds the collision retry loop in Add.
const MaxTokenAttempts = 3

// ErrTokenAllocation is returned when Add cannot find an unused token
// within MaxTokenAttempts. It indicates entropy or scale exhaustion and is
// not expected in practice.
var ErrTokenAllocation = errors.New("pending: cannot allocate token")

// Pendable is the key/value payload of a pending token. Values are
// arbitrary byte strings; non-UTF-8 values round-trip exactly.
type Pendable map[string]string

// Well-known pendable keys.
const (
	KeyType   = "type"
	KeyListID = "list_id"
)

// Type returns the pendable's "type" entry.
func (p Pendable) Type() string { return p[KeyType] }

// Entry is one element of the All sequence.
type Entry struct {
	Token    string
	Pendable Pendable
}

// Clock supplies wall time for expiration computation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Registry maps opaque tokens to pendables with an expiration.
//
// Thread-safety: Registry is safe for concurrent use; atomicity of
// destructive reads is provided by the store.
type Registry struct {
	store  *store.Store
	gen    TokenGenerator
	clock  Clock
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithGenerator overrides the token generator (tests use FixedGenerator).
func WithGenerator(g TokenGenerator) Option {
	return func(r *Registry) { r.gen = g }
}

// WithClock overrides the wall clock used for expirations.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a Registry on top of s.
func New(s *store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  s,
		gen:    NewSecureGenerator(),
		clock:  systemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add stores p under a fresh token that expires after lifetime and returns
// the token. A token collision is retried with a new token up to
// MaxTokenAttempts times before failing with ErrTokenAllocation.
func (r *Registry) Add(ctx context.Context, p Pendable, lifetime time.Duration) (string, error) {
	expiration := r.clock.Now().Add(lifetime)

	for attempt := 1; attempt <= MaxTokenAttempts; attempt++ {
		token, err := r.gen.Generate()
		if err != nil {
			return "", fmt.Errorf("pending add: %w", err)
		}

		err = r.store.InsertPending(ctx, token, expiration, p)
		if err == nil {
			r.logger.Debug("pended", "token", token, "type", p.Type(), "expiration", expiration)
			return token, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return "", fmt.Errorf("pending add: %w", err)
		}
		r.logger.Warn("token collision, retrying", "attempt", attempt)
	}

	return "", fmt.Errorf("pending add: %w after %d attempts", ErrTokenAllocation, MaxTokenAttempts)
}

// Confirm returns the pendable stored under token, or nil if there is none.
// Unknown and malformed tokens are not errors. With expunge the record is
// removed atomically, so a token can be consumed at most once.
func (r *Registry) Confirm(ctx context.Context, token string, expunge bool) (Pendable, error) {
	values, err := r.store.ConfirmPending(ctx, token, expunge)
	if err != nil {
		return nil, fmt.Errorf("pending confirm: %w", err)
	}
	if values == nil {
		return nil, nil
	}
	return Pendable(values), nil
}

// Evict deletes every record whose expiration is strictly in the past and
// returns how many were removed.
func (r *Registry) Evict(ctx context.Context) (int, error) {
	n, err := r.store.EvictPending(ctx, r.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("pending evict: %w", err)
	}
	if n > 0 {
		r.logger.Info("evicted expired pendings", "count", n)
	}
	return int(n), nil
}

// All yields every live record as of the call. The token set is
// snapshotted up front; each pendable is then read lazily without expunging.
// Records removed after the snapshot are skipped. Iteration stops after the
// first error is yielded.
func (r *Registry) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		tokens, err := r.store.PendingTokens(ctx)
		if err != nil {
			yield(Entry{}, fmt.Errorf("pending all: %w", err))
			return
		}
		for _, token := range tokens {
			p, err := r.Confirm(ctx, token, false)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if p == nil {
				continue
			}
			if !yield(Entry{Token: token, Pendable: p}, nil) {
				return
			}
		}
	}
}

// Find returns the live records matching listID and pendType. Empty
// arguments match everything.
func (r *Registry) Find(ctx context.Context, listID, pendType string) ([]Entry, error) {
	var found []Entry
	for e, err := range r.All(ctx) {
		if err != nil {
			return nil, err
		}
		if listID != "" && e.Pendable[KeyListID] != listID {
			continue
		}
		if pendType != "" && e.Pendable.Type() != pendType {
			continue
		}
		found = append(found, e)
	}
	return found, nil
}

// Count returns the number of live (not yet evicted) records.
func (r *Registry) Count(ctx context.Context) (int, error) {
	n, err := r.store.CountPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// Expiration returns when token expires, or false if it is not pending.
func (r *Registry) Expiration(ctx context.Context, token string) (time.Time, bool, error) {
	return r.store.PendingExpiration(ctx, token)
}
