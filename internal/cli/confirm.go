package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <list-id> <token>",
		Short: "Resume a subscription with its token",
		Long: `Present a token issued by "listflow register" or a previous confirm.

A subscriber token confirms the address; a moderator token approves the
request. Each token works once. Confirming may issue a new token for the
next party.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirm(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runConfirm(opts *RootOptions, listID, token string, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	r, err := a.registrar(ctx, listID)
	if err != nil {
		return err
	}

	res, err := r.Confirm(ctx, token)
	if err != nil {
		return a.out.FailErr(err)
	}
	return a.out.Success(res, formatResult(res))
}

// NewDiscardCommand creates the discard command.
func NewDiscardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <list-id> <token>",
		Short: "Abandon a pending subscription",
		Long: `Abandon the subscription waiting on token. The token and the saved
progress are deleted; the subscriber is not added.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscard(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runDiscard(opts *RootOptions, listID, token string, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	r, err := a.registrar(ctx, listID)
	if err != nil {
		return err
	}

	if err := r.Discard(ctx, token); err != nil {
		return a.out.FailErr(err)
	}
	return a.out.Success(map[string]string{"discarded": token}, fmt.Sprintf("✓ Discarded %s\n", token))
}
