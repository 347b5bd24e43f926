package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/internal/chat/router"
	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"
	testtool "chat_sync_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	*rootOptions
	Memory bool
	Pprof  string
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket sync service",
		Long: `Run the websocket sync service.

With --memory every store lives in process, for local development:
  chat_sync serve --memory`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "use in-memory stores")
	cmd.Flags().StringVar(&opts.Pprof, "pprof", "", "pprof listen address, empty disables")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if opts.Pprof != "" {
		testtool.StartPprof(opts.Pprof)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		deps    app.Deps
		closers []func()
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	if opts.Memory {
		deps = memoryDeps()
		logger.Log.Info("running with in-memory stores")
	} else {
		deps, closers, err = backingDeps(ctx, cfg)
		if err != nil {
			return err
		}
	}

	engineOpts := app.OptionsFromConfig(cfg.Engine)
	handler := app.NewChatWebsocketHandler(deps, engineOpts, app.NewConversationUseCase(deps.Store, nil))

	// 啟動 Fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatSyncLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("open access log: %w", err)
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 將日誌輸出到文件
	}))

	router.RegisterRoutes(r, handler)

	port := cfg.Port
	if config.EnvConfig.ChatSyncPort != "" {
		port = config.EnvConfig.ChatSyncPort
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("chat sync listening", zap.String("port", port))
		errCh <- r.Listen(":" + port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.ShutdownWithContext(shutdownCtx)
}

func memoryDeps() app.Deps {
	return app.Deps{
		Store:     repository.NewMemoryStore(nil),
		Ephemeral: repository.NewMemoryEphemeralStore(nil),
		Users:     repository.NewMemoryUserDirectory(nil),
	}
}

// backingDeps mongo + redis + postgres, kafka and minio when configured
func backingDeps(ctx context.Context, cfg config.Sync) (app.Deps, []func(), error) {
	var closers []func()
	fail := func(err error) (app.Deps, []func(), error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return app.Deps{}, nil, err
	}

	// 1. Mongo (conversations / members / messages)
	mongo, err := connectMongo(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = mongo.Close(context.Background()) })
	store := repository.NewMongoStore(mongo.Database)

	// 2. Redis (typing / presence)
	redisClient, err := connectRedis(cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	ephemeral := repository.NewRedisEphemeralStore(redisClient, cfg.Engine.TypingTTL, cfg.Engine.PresenceTTL)
	go ephemeral.Run(ctx)

	// 3. Postgres (user directory)
	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, pool.Close)
	users := repository.NewPostgresUserDirectory(pool)

	deps := app.Deps{Store: store, Ephemeral: ephemeral, Users: users}

	// 4. Kafka (message events), optional
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval) * time.Second,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = writer.Close() })
		deps.Events = repository.NewKafkaEventPublisher(writer)
	}

	// 5. MinIO (media urls), optional
	if cfg.MinIO.Endpoint != "" {
		mc, err := database.NewMinIOConnection(ctx, database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.Bucket,
			Region:        cfg.MinIO.Region,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    3,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			return fail(err)
		}
		deps.Media = repository.NewMinIOMediaResolver(mc, cfg.MinIO.URLExpiry)
	}

	return deps, closers, nil
}

func connectMongo(ctx context.Context, cfg config.Sync) (*database.MongoDB, error) {
	uri := database.MongoURI(cfg.Mongo.User, cfg.Mongo.Password, cfg.Mongo.Host, cfg.Mongo.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.Mongo.RetryCount,
			RetryInterval: time.Duration(cfg.Mongo.RetryInterval) * time.Second,
		},
		cfg.Mongo.Database)
	if err != nil {
		logger.Log.Error("Unable to connect to mongoDB database after retries",
			zap.String("host", cfg.Mongo.Host), zap.Error(err))
		return nil, err
	}
	return mongo, nil
}

func connectRedis(cfg config.Sync) (*redis.Client, error) {
	if cfg.Redis.Addr != "" {
		return database.NewRedisStandaloneClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.RedisDB)
	}
	masterName, sentinel := config.GetRedisSetting()
	return database.NewRedisClient(masterName, sentinel, cfg.Redis.Password, cfg.Redis.RedisDB)
}

func connectPostgres(ctx context.Context, cfg config.Sync) (*pgxpool.Pool, error) {
	pg := cfg.Postgres
	pool, err := database.NewDatabaseConnection(ctx, database.Connection{
		ConnectStr:    database.PostgresURI(pg.User, pg.Password, pg.Host, pg.Port, pg.Database),
		RetryCount:    pg.RetryCount,
		RetryInterval: time.Duration(pg.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Error("Unable to connect to postgreSQL database after retries",
			zap.String("host", pg.Host), zap.Error(err))
		return nil, err
	}
	return pool, nil
}
