package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/lanchat-server/internal/app"
	"github.com/vovakirdan/lanchat-server/internal/auth"
	"github.com/vovakirdan/lanchat-server/internal/store/sqlite"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

// accounts is the slice of auth.Service the user commands need.
type accounts interface {
	Provision(ctx context.Context, username, password string) (bool, error)
	SetPassword(ctx context.Context, username, newPassword string) error
}

func newUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage chat accounts",
	}
	cmd.AddCommand(newUsersAddCmd(opts), newUsersSeedCmd(opts), newUsersPasswdCmd(opts))
	return cmd
}

func newUsersAddCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(opts, func(svc accounts) error {
				pw, err := passwordOrPrompt(password, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				return addUser(cmd.Context(), svc, args[0], pw, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	return cmd
}

func newUsersSeedCmd(opts *rootOptions) *cobra.Command {
	var (
		prefix   string
		count    int
		password string
	)
	cmd := &cobra.Command{
		Use:   "seed [username...]",
		Short: "Create many accounts sharing one password; existing ones are skipped",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = seedNames(prefix, count)
			}
			return withAccounts(opts, func(svc accounts) error {
				return seedUsers(cmd.Context(), svc, names, password, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "student_", "username prefix for generated accounts")
	cmd.Flags().IntVar(&count, "count", 70, "number of generated accounts")
	cmd.Flags().StringVar(&password, "password", "password", "password for every seeded account")
	return cmd
}

func newUsersPasswdCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Reset an account password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(opts, func(svc accounts) error {
				pw, err := passwordOrPrompt(password, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if err := svc.SetPassword(cmd.Context(), args[0], pw); err != nil {
					return fmt.Errorf("set password for %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (prompted when empty)")
	return cmd
}

func withAccounts(opts *rootOptions, fn func(accounts) error) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}()
	return fn(app.NewAuthService(cfg, st))
}

func addUser(ctx context.Context, svc accounts, username, password string, out io.Writer) error {
	created, err := svc.Provision(ctx, username, password)
	if err != nil {
		return describeProvisionErr(username, err)
	}
	if !created {
		return fmt.Errorf("user %s already exists", username)
	}
	fmt.Fprintf(out, "Added user: %s\n", username)
	return nil
}

func seedUsers(ctx context.Context, svc accounts, names []string, password string, out io.Writer) error {
	added := 0
	for _, name := range names {
		created, err := svc.Provision(ctx, name, password)
		if err != nil {
			return describeProvisionErr(name, err)
		}
		if created {
			added++
			fmt.Fprintf(out, "Added user: %s\n", name)
		}
	}
	fmt.Fprintf(out, "Added %d new users (%d skipped)\n", added, len(names)-added)
	return nil
}

func seedNames(prefix string, count int) []string {
	names := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		names = append(names, fmt.Sprintf("%s%d", prefix, i))
	}
	return names
}

func describeProvisionErr(username string, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername):
		return fmt.Errorf("invalid username %q: must be 2-32 characters and not %q", username, "broadcast")
	case errors.Is(err, auth.ErrInvalidPassword):
		return errors.New("password must be at least 6 characters")
	default:
		return fmt.Errorf("provision %s: %w", username, err)
	}
}

func passwordOrPrompt(flagValue string, w io.Writer) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	fmt.Fprint(w, "Enter password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return strings.TrimRight(string(first), "\r\n"), nil
}
