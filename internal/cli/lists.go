package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/listflow/internal/config"
	"github.com/roach88/listflow/internal/model"
)

// NewListsCommand creates the lists command group.
func NewListsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Manage mailing list definitions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "load <file.cue>",
		Short: "Load list definitions from CUE",
		Long: `Validate a CUE file of list definitions and upsert every list, its
owners, moderators and bans. Loading the same file twice is harmless.

Example file:
  lists: "ant.example.com": {
      posting_address:     "ant@example.com"
      display_name:        "Ant"
      subscription_policy: "confirm_then_moderate"
      owners: ["anne@example.com"]
  }
  global_bans: ["^.*@spam\\.example$"]`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListsLoad(rootOpts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Show defined lists",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListsShow(rootOpts, cmd)
		},
	})

	return cmd
}

func runListsLoad(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	defs, err := config.LoadListsFile(path)
	if err != nil {
		var le *config.LoadError
		if errors.As(err, &le) {
			_ = out.Error(ErrCodeDefinitions, le.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeDefinitions, err)
		}
		return out.Fail(ExitCommandError, ErrCodeDefinitions, err.Error(), err)
	}
	out.VerboseLog("Loaded %d list definition(s) from %s", len(defs.Lists), path)

	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := config.Apply(cmd.Context(), a.store, defs, time.Now())
	if err != nil {
		return a.out.FailErr(err)
	}
	a.logger.Info("list definitions applied", "path", path, "lists", res.Lists, "roles", res.Roles, "bans", res.Bans)

	return a.out.Success(res, fmt.Sprintf("✓ Loaded %d list(s), %d new role(s), %d ban(s)\n", res.Lists, res.Roles, res.Bans))
}

func runListsShow(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	lists, err := a.store.Lists(cmd.Context())
	if err != nil {
		return a.out.FailErr(err)
	}
	if lists == nil {
		lists = []model.MailingList{}
	}

	var b strings.Builder
	for _, l := range lists {
		fmt.Fprintf(&b, "%s  %s  policy=%s\n", l.ListID, l.PostingAddress, l.SubscriptionPolicy)
	}
	fmt.Fprintf(&b, "%d list(s)\n", len(lists))
	return a.out.Success(lists, b.String())
}
