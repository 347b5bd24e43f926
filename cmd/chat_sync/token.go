package main

import (
	"fmt"
	"time"

	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/token"

	"github.com/spf13/cobra"
)

func newTokenCommand(rootOpts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <uid>",
		Short: "Issue a development JWT for uid",
		Long: `Issue a JWT signed with the configured secret.

Example:
  chat_sync token alice --ttl 2h
  wscat -c "ws://localhost:8084/ws?auth=$(chat_sync token alice)"`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rootOpts.load(); err != nil {
				return err
			}
			tok, err := token.GenerateJWTWithTTL(args[0], string(token.RoleUser), config.EnvConfig.ChatSync, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
