package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "login EMAIL",
		Short: "Sign in and keep the session for later commands",
		Long:  "Sign in with a password read from ROOST_PASSWORD, or from the first line of stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: app.instrument("login", func(ctx context.Context, args []string) error {
			password, err := app.readPassword()
			if err != nil {
				return err
			}
			client, err := app.connect(ctx)
			if err != nil {
				return err
			}
			session, err := client.Auth().SignInWithPassword(ctx, args[0], password)
			if err != nil {
				return err
			}
			app.tel.Logger.WithField("session_file", app.cfg.SessionFile).Info("signed in")
			return app.print(map[string]interface{}{
				"user":       session.User,
				"expires_at": session.ExpiresAt,
			})
		}),
	}
}

func (c *cli) readPassword() (string, error) {
	if password := os.Getenv("ROOST_PASSWORD"); password != "" {
		return password, nil
	}
	line, err := bufio.NewReader(c.in).ReadString('\n')
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return "", errors.New("empty password")
	}
	return password, nil
}

func newLogoutCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: app.instrument("logout", func(ctx context.Context, args []string) error {
			client, err := app.connect(ctx)
			if err != nil {
				return err
			}
			signedIn := client.Auth().CurrentSession() != nil
			if err := client.Auth().SignOut(ctx); err != nil {
				// the local session is gone either way
				app.tel.Logger.WithError(err).Warn("backend sign out failed")
			}
			return app.print(map[string]interface{}{"signed_out": signedIn})
		}),
	}
}
