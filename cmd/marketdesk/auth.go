package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) loginCmd() *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a one-time code sent by e-mail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reader := bufio.NewReader(a.in)
			if email == "" {
				fmt.Fprint(a.out, "E-mail: ")
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read e-mail: %w", err)
				}
				email = strings.TrimSpace(line)
			}
			if code == "" {
				if err := a.auth.GenerateCode(ctx, email); err != nil {
					return fmt.Errorf("request login code: %w", err)
				}
				fmt.Fprintf(a.out, "A login code was sent to %s.\nCode: ", email)
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read code: %w", err)
				}
				code = strings.TrimSpace(line)
			}
			creds, err := a.auth.ExchangeCode(ctx, email, code)
			if err != nil {
				return fmt.Errorf("log in: %w", err)
			}
			a.log.Info("logged in", "email", creds.Email)
			fmt.Fprintf(a.out, "Logged in as %s\n", creds.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account e-mail (prompted when empty)")
	cmd.Flags().StringVar(&code, "code", "", "code already received; skips requesting a new one")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the hub profile of the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			creds, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			me, err := a.auth.Me(ctx, creds)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(me, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, string(b))
			return nil
		},
	}
}
