package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/listflow/internal/model"
)

// BanOptions holds flags shared by the ban subcommands.
type BanOptions struct {
	*RootOptions
	List string
}

// NewBanCommand creates the ban command group.
func NewBanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ban",
		Short: "Manage ban lists",
		Long: `Manage the global ban list, or a list's ban list with --list.

Entries starting with '^' are case-insensitive regular expressions matched
against the whole address; all other entries match one address exactly.`,
	}
	cmd.PersistentFlags().StringVar(&opts.List, "list", "", "list ID (default: global bans)")

	cmd.AddCommand(&cobra.Command{
		Use:           "add <email|pattern>",
		Short:         "Add a ban entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBanAdd(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "remove <email|pattern>",
		Short:         "Remove a ban entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBanRemove(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "Show ban entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBanList(opts, cmd)
		},
	})

	return cmd
}

func banScope(listID string) string {
	if listID == "" {
		return "global"
	}
	return listID
}

func runBanAdd(opts *BanOptions, entry string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if opts.List != "" {
		if _, err := a.list(ctx, opts.List); err != nil {
			return err
		}
	}
	if err := a.bans.Ban(ctx, opts.List, entry); err != nil {
		return a.out.Fail(ExitCommandError, ErrCodeInvalidArgs, err.Error(), err)
	}
	return a.out.Success(model.Ban{ListID: opts.List, Email: entry},
		fmt.Sprintf("✓ Banned %s (%s)\n", entry, banScope(opts.List)))
}

func runBanRemove(opts *BanOptions, entry string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.bans.Unban(cmd.Context(), opts.List, entry)
	if err != nil {
		return a.out.Fail(ExitCommandError, ErrCodeInvalidArgs, err.Error(), err)
	}
	if !removed {
		return a.out.Fail(ExitFailure, ErrCodeInvalidArgs,
			fmt.Sprintf("%s is not banned (%s)", entry, banScope(opts.List)), nil)
	}
	return a.out.Success(model.Ban{ListID: opts.List, Email: entry},
		fmt.Sprintf("✓ Unbanned %s (%s)\n", entry, banScope(opts.List)))
}

func runBanList(opts *BanOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.bans.List(cmd.Context(), opts.List)
	if err != nil {
		return a.out.FailErr(err)
	}
	if entries == nil {
		entries = []model.Ban{}
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintln(&b, e.Email)
	}
	fmt.Fprintf(&b, "%d ban(s) (%s)\n", len(entries), banScope(opts.List))
	return a.out.Success(entries, b.String())
}
