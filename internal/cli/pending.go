package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/listflow/internal/pending"
	"github.com/roach88/listflow/internal/subscription"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	List string
	Type string
}

// PendingEntry is one row of pending output.
type PendingEntry struct {
	Token      string            `json:"token"`
	Expiration time.Time         `json:"expiration"`
	Values     map[string]string `json:"values"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List live tokens",
		Long: `List every token in the pending registry, optionally filtered by list
and pendable type. Expired tokens are listed until "listflow evict" runs.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.List, "list", "", "only tokens for this list")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only tokens of this pendable type")

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	entries, err := a.pendings.Find(ctx, opts.List, opts.Type)
	if err != nil {
		return a.out.FailErr(err)
	}

	rows := make([]PendingEntry, 0, len(entries))
	for _, e := range entries {
		exp, ok, err := a.pendings.Expiration(ctx, e.Token)
		if err != nil {
			return a.out.FailErr(err)
		}
		if !ok {
			continue
		}
		rows = append(rows, PendingEntry{Token: e.Token, Expiration: exp.UTC(), Values: e.Pendable})
	}
	return a.out.Success(rows, formatPending(rows))
}

func formatPending(rows []PendingEntry) string {
	if len(rows) == 0 {
		return "No pending tokens\n"
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s  expires %s\n", r.Token, r.Expiration.Format(time.RFC3339))
		for _, k := range []string{pending.KeyType, pending.KeyListID, subscription.KeyEmail, subscription.KeyTokenOwner} {
			if v, ok := r.Values[k]; ok {
				fmt.Fprintf(&b, "  %s: %s\n", k, v)
			}
		}
	}
	fmt.Fprintf(&b, "\n%d pending token(s)\n", len(rows))
	return b.String()
}

// EvictResult reports what evict removed.
type EvictResult struct {
	Tokens int   `json:"tokens"`
	States int64 `json:"states"`
}

// NewEvictCommand creates the evict command.
func NewEvictCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Remove expired tokens",
		Long: `Remove every token whose expiration has passed, along with the
subscription progress saved under it. Run this from a scheduler; until it
runs, expired tokens remain confirmable.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvict(rootOpts, cmd)
		},
	}
}

func runEvict(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	n, err := a.pendings.Evict(ctx)
	if err != nil {
		return a.out.FailErr(err)
	}
	states, err := a.store.PurgeOrphanWorkflowStates(ctx, subscription.Name)
	if err != nil {
		return a.out.FailErr(err)
	}
	a.logger.Info("evicted expired tokens", "tokens", n, "states", states)

	res := EvictResult{Tokens: n, States: states}
	return a.out.Success(res, fmt.Sprintf("✓ Evicted %d token(s), %d saved state(s)\n", n, states))
}
