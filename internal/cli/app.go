package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/listflow/internal/bans"
	"github.com/roach88/listflow/internal/config"
	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/notify"
	"github.com/roach88/listflow/internal/pending"
	"github.com/roach88/listflow/internal/registrar"
	"github.com/roach88/listflow/internal/store"
	"github.com/roach88/listflow/internal/subscription"
)

// app is the wiring shared by every command: configuration, logger,
// database and the services built on it.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	pendings *pending.Registry
	bans     *bans.Checker
	notifier subscription.Notifier
	out      *OutputFormatter
}

// loadConfig reads the environment and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return config.Config{}, err
	}
	if o.Database != "" {
		cfg.DB = o.Database
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// openApp loads configuration and opens the database. Callers must Close.
func openApp(o *RootOptions, cmd *cobra.Command) (*app, error) {
	out := o.formatter(cmd)

	cfg, err := o.loadConfig()
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, err.Error(), err)
	}
	level, _ := cfg.Level()
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, level)

	logger.Debug("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		pendings: pending.New(st, pending.WithLogger(logger)),
		bans:     bans.NewChecker(st, bans.WithLogger(logger)),
		notifier: notify.NewLog(logger),
		out:      out,
	}, nil
}

// newLogger builds the process logger. format is "json" or "text".
func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	} else {
		handler = slog.NewTextHandler(w, hopts)
	}
	return slog.New(handler)
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) deps() subscription.Deps {
	return subscription.Deps{
		States:        a.store,
		Pendings:      a.pendings,
		Identity:      a.store,
		Roster:        a.store,
		Bans:          a.bans,
		Notifier:      a.notifier,
		Logger:        a.logger,
		TokenLifetime: a.cfg.PendingLifetime,
	}
}

// list loads a mailing list, failing with ErrCodeUnknownList.
func (a *app) list(ctx context.Context, listID string) (model.MailingList, error) {
	l, err := a.store.GetList(ctx, listID)
	if errors.Is(err, store.ErrNotFound) {
		return model.MailingList{}, a.out.Fail(ExitCommandError, ErrCodeUnknownList, "unknown list "+listID, err)
	}
	if err != nil {
		return model.MailingList{}, a.out.Fail(ExitCommandError, ErrCodeDatabase, err.Error(), err)
	}
	return *l, nil
}

func (a *app) registrar(ctx context.Context, listID string) (*registrar.Registrar, error) {
	l, err := a.list(ctx, listID)
	if err != nil {
		return nil, err
	}
	return registrar.New(l, a.deps()), nil
}
