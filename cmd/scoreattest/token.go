package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MJE43/score-attest/internal/apiauth"
)

func (a *app) tokenStore() *apiauth.TokenStore {
	fallback := ""
	if dir, err := os.UserConfigDir(); err == nil {
		fallback = filepath.Join(dir, "scoreattest", "tokens.json")
	}
	return apiauth.NewTokenStore(apiauth.DefaultService, fallback)
}

func newTokenCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the API token",
	}
	cmd.PersistentFlags().StringVar(&name, "name", "", "token name, default from config")

	tokenName := func() string {
		if name != "" {
			return name
		}
		return a.cfg.Server.TokenName
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "generate",
			Short: "Create and store a new token",
			RunE: func(cmd *cobra.Command, args []string) error {
				tok, err := a.tokenStore().Generate(tokenName())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored token",
			RunE: func(cmd *cobra.Command, args []string) error {
				tok, err := a.tokenStore().Get(tokenName())
				if errors.Is(err, apiauth.ErrNotFound) {
					return fmt.Errorf("no token named %q, run 'scoreattest token generate'", tokenName())
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored token",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.tokenStore().Delete(tokenName()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "token %q deleted\n", tokenName())
				return nil
			},
		},
	)
	return cmd
}
