package main

import (
	"context"
	"time"

	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"

	"github.com/spf13/cobra"
)

func newIndexesCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "indexes",
		Short:        "Create Mongo indexes and the Postgres users table",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			mongo, err := connectMongo(ctx, cfg)
			if err != nil {
				return err
			}
			defer mongo.Close(context.Background())
			if err := repository.NewMongoStore(mongo.Database).EnsureIndexes(ctx); err != nil {
				return err
			}
			logger.Log.Info("mongo indexes ready")

			pool, err := connectPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := repository.NewPostgresUserDirectory(pool).EnsureSchema(ctx); err != nil {
				return err
			}
			logger.Log.Info("postgres users table ready")
			return nil
		},
	}
}
