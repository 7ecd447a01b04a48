package admincli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant and revoke roles",
	}
	cmd.AddCommand(c.newRoleChangeCmd("grant", "Grant a role to an account", Backend.GrantRole))
	cmd.AddCommand(c.newRoleChangeCmd("revoke", "Revoke a role from an account", Backend.RevokeRole))
	return cmd
}

type roleChange func(b Backend, ctx context.Context, accountID, role string) error

func (c *cli) newRoleChangeCmd(verb, short string, change roleChange) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <email> <role>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, role := args[0], args[1]
			return c.withBackend(cmd, func(ctx context.Context, b Backend) error {
				account, err := b.FindAccount(ctx, email)
				if err != nil {
					return describe(err, email)
				}
				if account.Deleted() {
					return fmt.Errorf("account %s is deleted", email)
				}
				if err := change(b, ctx, account.ID, role); err != nil {
					return err
				}
				cmd.Printf("%s %s: %s\n", verb, role, account.Email)
				return nil
			})
		},
	}
}
