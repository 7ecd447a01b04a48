// Package admincli implements identityctl, the operator command line for
// migrations, accounts and roles.
package admincli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// GlobalOptions are the flags shared by every subcommand.
type GlobalOptions struct {
	ConfigPath string
	DSN        string
	Lookup     func(string) (string, bool)
	LogOutput  io.Writer
}

type cli struct {
	open Opener
	opts GlobalOptions
}

// NewRootCmd creates the root command. open is called by each subcommand
// that needs the database.
func NewRootCmd(open Opener) *cobra.Command {
	c := &cli{open: open, opts: GlobalOptions{Lookup: os.LookupEnv, LogOutput: os.Stderr}}

	cmd := &cobra.Command{
		Use:           "identityctl",
		Short:         "Administer sitekeeper accounts and roles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&c.opts.ConfigPath, "config", "c", "", "server JSON config file")
	cmd.PersistentFlags().StringVarP(&c.opts.DSN, "dsn", "d", "", "database DSN (overrides the config file)")

	cmd.AddCommand(c.newMigrateCmd())
	cmd.AddCommand(c.newAccountCmd())
	cmd.AddCommand(c.newRoleCmd())

	return cmd
}

// withBackend opens the backend, runs fn and closes it.
func (c *cli) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := c.open(ctx, c.opts)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, b)
}

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b Backend) error {
				if err := b.Migrate(ctx); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}
