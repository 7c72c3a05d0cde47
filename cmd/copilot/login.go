package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidcare/copilot/internal/app"
	"github.com/aidcare/copilot/internal/backend"
)

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print a bearer token for COPILOT_AUTH_TOKEN",
		Long: `Signs in against the backend. The password is read from --password,
then COPILOT_PASSWORD, then the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				password = os.Getenv("COPILOT_PASSWORD")
			}
			if password == "" {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					password = strings.TrimRight(sc.Text(), "\r\n")
				}
			}
			if password == "" {
				return errors.New("password is required")
			}

			return withApp(func(ctx context.Context, built *app.BuildResult) error {
				tok, err := built.Backend.Login(ctx, email, password)
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "export COPILOT_AUTH_TOKEN=%s\n", tok.AccessToken)
				printUser(cmd, tok.User)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user behind the configured token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, built *app.BuildResult) error {
				if built.Credentials.Token() == "" {
					return errors.New("no token configured; run copilot login")
				}
				u, err := built.Backend.Me(ctx)
				if err != nil {
					return err
				}
				printUser(cmd, u)
				return nil
			})
		},
	}
}

func printUser(cmd *cobra.Command, u backend.AuthUser) {
	// Keep stdout eval-able for login; user details go to stderr.
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "# %s <%s> role=%s\n", u.Name, u.Email, u.Role)
	if u.WardName != "" || u.HospitalName != "" {
		fmt.Fprintf(w, "# ward=%s hospital=%s\n", u.WardName, u.HospitalName)
	}
}
