package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dripdrop/musicjobs/internal/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateLegacyToken(args[0], email, ctx.configValue().JWT.Secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	return cmd
}
