package admincli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPasswordMismatch = errors.New("passwords do not match")

func (c *cli) newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create and delete accounts",
	}
	cmd.AddCommand(c.newAccountCreateCmd())
	cmd.AddCommand(c.newAccountDeleteCmd())
	return cmd
}

func (c *cli) newAccountCreateCmd() *cobra.Command {
	var (
		email         string
		locale        string
		roles         []string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account, prompting for its password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				password []byte
				err      error
			)
			if passwordStdin {
				password, err = readLine(cmd.InOrStdin())
			} else {
				password, err = promptPassword(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			return c.withBackend(cmd, func(ctx context.Context, b Backend) error {
				user, err := b.CreateAccount(ctx, email, string(password), locale, roles...)
				if err != nil {
					return err
				}
				cmd.Printf("Created account %s (%s)\n", user.ID, user.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&locale, "locale", "en", "preferred locale")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant (repeatable)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func (c *cli) newAccountDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <email>",
		Short: "Soft-delete an account; its sessions stop working at once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b Backend) error {
				account, err := b.FindAccount(ctx, args[0])
				if err != nil {
					return describe(err, args[0])
				}
				if err := b.DeleteAccount(ctx, account.ID); err != nil {
					return err
				}
				cmd.Printf("Deleted account %s\n", account.Email)
				return nil
			})
		},
	}
}

// promptPassword reads the password twice from the terminal without echo.
func promptPassword(w io.Writer) ([]byte, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	defer common.WipeByteArray(second)
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}

	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, errPasswordMismatch
	}
	return first, nil
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func describe(err error, email string) error {
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("no account with email %s", email)
	}
	return err
}
