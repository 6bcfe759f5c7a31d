package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/registrar"
	"github.com/roach88/listflow/internal/store"
	"github.com/roach88/listflow/internal/subscription"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	UserID       string
	DisplayName  string
	PreVerified  bool
	PreConfirmed bool
	PreApproved  bool
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <list-id> [email]",
		Short: "Start a subscription",
		Long: `Start subscribing an address, or a user's preferred address, to a list.

The subscription runs until it completes or needs an out-of-band action.
In the second case the printed token must be passed to "listflow confirm"
by the party named as its owner.

Example:
  listflow register ant.example.com anne@example.com --display-name "Anne Person"
  listflow register ant.example.com --user 0190f3c4-8a6e-7c2b-9f1e-6f3a2b1c0d9e
  listflow register ant.example.com bart@example.com --pre-verified --pre-confirmed`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "subscribe this user's preferred address instead of an email")
	cmd.Flags().StringVar(&opts.DisplayName, "display-name", "", "display name for a new address")
	cmd.Flags().BoolVar(&opts.PreVerified, "pre-verified", false, "treat the address as verified")
	cmd.Flags().BoolVar(&opts.PreConfirmed, "pre-confirmed", false, "skip subscriber confirmation")
	cmd.Flags().BoolVar(&opts.PreApproved, "pre-approved", false, "skip moderator approval")

	return cmd
}

func runRegister(opts *RegisterOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if (len(args) == 2) == (opts.UserID != "") {
		return out.Fail(ExitCommandError, ErrCodeInvalidArgs, "exactly one of <email> or --user is required", nil)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	r, err := a.registrar(ctx, args[0])
	if err != nil {
		return err
	}

	var sub subscription.Subscriber
	if opts.UserID != "" {
		id, err := uuid.Parse(opts.UserID)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeInvalidArgs, fmt.Sprintf("invalid user id %q", opts.UserID), err)
		}
		u, err := a.store.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return out.Fail(ExitCommandError, ErrCodeInvalidArgs, "unknown user "+opts.UserID, err)
		}
		if err != nil {
			return out.FailErr(err)
		}
		sub.User = u
	} else {
		if err := model.ValidateEmail(args[1]); err != nil {
			return out.Fail(ExitCommandError, ErrCodeInvalidArgs, err.Error(), err)
		}
		sub.Address = &model.Address{Email: args[1], DisplayName: opts.DisplayName}
	}

	res, err := r.Register(ctx, sub, subscription.Flags{
		PreVerified:  opts.PreVerified,
		PreConfirmed: opts.PreConfirmed,
		PreApproved:  opts.PreApproved,
	})
	if err != nil {
		return out.FailErr(err)
	}
	return out.Success(res, formatResult(res))
}

// formatResult renders a registrar result for text output.
func formatResult(res registrar.Result) string {
	var b strings.Builder
	if res.Member != nil {
		fmt.Fprintf(&b, "✓ Subscribed %s to %s\n", res.Member.Email, res.Member.ListID)
		fmt.Fprintf(&b, "  member: %s\n", res.Member.ID)
		return b.String()
	}
	fmt.Fprintf(&b, "Pending: waiting for %s\n", res.TokenOwner)
	fmt.Fprintf(&b, "  token: %s\n", res.Token)
	return b.String()
}
