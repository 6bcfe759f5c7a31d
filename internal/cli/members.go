package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/listflow/internal/model"
)

// MembersOptions holds flags for the members command.
type MembersOptions struct {
	*RootOptions
	Role string
}

// NewMembersCommand creates the members command.
func NewMembersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MembersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "members <list-id>",
		Short:         "List a list's roster",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMembers(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Role, "role", string(model.RoleMember), "roster to show (member|owner|moderator)")

	return cmd
}

func runMembers(opts *MembersOptions, listID string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	role, err := model.ParseRole(opts.Role)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInvalidArgs, err.Error(), err)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if _, err := a.list(ctx, listID); err != nil {
		return err
	}
	members, err := a.store.Members(ctx, listID, role)
	if err != nil {
		return a.out.FailErr(err)
	}
	if members == nil {
		members = []model.Member{}
	}

	var b strings.Builder
	for _, m := range members {
		fmt.Fprintf(&b, "%s  (%s, since %s)\n", m.Email, m.SubscribedBy, m.SubscribedOn.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "%d %s(s)\n", len(members), role)
	return a.out.Success(members, b.String())
}
