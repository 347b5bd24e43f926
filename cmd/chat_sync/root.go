package main

import (
	"fmt"

	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/token"

	"github.com/spf13/cobra"
)

// rootOptions global flags
type rootOptions struct {
	ConfigPath string
	Debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "chat_sync",
		Short: "chat sync - real-time conversation sync over websocket",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Log = logger.Initialize(config.EnvConfig.ChatSync, config.EnvConfig.ChatSyncLogPath)
			logger.Log.SetDebugMode(opts.Debug)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.EnvConfig.ChatSyncYAMLPath, "directory holding "+config.EnvConfig.ChatSync+".yaml")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug log")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newIndexesCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

// load read the yaml config and install the jwt secret
func (o *rootOptions) load() (config.Sync, error) {
	cfg, err := config.LoadConfig[config.Sync](config.EnvConfig.ChatSync, o.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg.Engine = cfg.Engine.WithDefaults()
	token.SetSecret(cfg.JWTSecret)
	return cfg, nil
}
