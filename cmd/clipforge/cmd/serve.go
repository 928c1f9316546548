package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/fetch"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	internalhttp "github.com/clipforge/clipforge/internal/http"
	"github.com/clipforge/clipforge/internal/http/handlers"
	"github.com/clipforge/clipforge/internal/observability"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/version"
	"github.com/clipforge/clipforge/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the render worker",
	Long: `Start the clipforge render worker.

The worker consumes render jobs from the Redis queue and the database
poller, renders them with FFmpeg, and publishes results to object storage.
It also exposes an HTTP API with a health endpoint and an authenticated
push surface for direct render invocation.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8090, "Port to listen on")
	serveCmd.Flags().String("database-dsn", "clipforge.db", "Database DSN")
	serveCmd.Flags().String("queue-url", "", "Redis queue URL (empty disables the queue channel)")
	serveCmd.Flags().String("bucket", "", "Object storage bucket for rendered output")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database-dsn"))
	mustBindPFlag("queue.url", serveCmd.Flags().Lookup("queue-url"))
	mustBindPFlag("storage.bucket", serveCmd.Flags().Lookup("bucket"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Debug("configuration loaded",
		slog.String("address", cfg.Server.Address()),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("storage_endpoint", cfg.Storage.Endpoint),
		slog.String("storage_bucket", cfg.Storage.Bucket),
		slog.Any("storage_access_key", observability.Secret(cfg.Storage.AccessKey)),
		slog.Any("storage_secret_key", observability.Secret(cfg.Storage.SecretKey)),
		slog.Any("shared_secret", observability.Secret(cfg.Server.SharedSecret)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories
	jobRepo := repository.NewRenderJobRepository(db.DB)
	projectRepo := repository.NewProjectRepository(db.DB)
	assetRepo := repository.NewAssetRepository(db.DB)
	renditionRepo := repository.NewClipRenditionRepository(db.DB)

	// Object storage and scratch space
	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing object storage: %w", err)
	}
	workspace, err := storage.NewWorkspace(cfg.Storage.TempDir, logger)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}
	if removed := workspace.SweepOrphans(cfg.Worker.StaleJobAge); removed > 0 {
		logger.Info("cleaned orphaned job directories on startup",
			slog.Int("removed_count", removed),
		)
	}

	// FFmpeg
	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	binInfo, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}
	logger.Info("ffmpeg detected",
		slog.String("path", binInfo.FFmpegPath),
		slog.String("version", binInfo.Version),
	)
	runner := ffmpeg.NewRunner(binInfo, logger)

	// Asset fetcher
	fetcher, err := fetch.New(assetRepo, store, cfg.Worker.DownloadTimeout, logger)
	if err != nil {
		return fmt.Errorf("initializing asset fetcher: %w", err)
	}

	// Render pipeline
	controller := worker.NewController(jobRepo, projectRepo, fetcher, runner, store, workspace, logger)
	renditions := worker.NewRenditionService(renditionRepo, fetcher, runner, store, workspace, logger)

	// Job acquisition: Redis queue (optional) plus the database poller.
	var queueClient *redis.Client
	if cfg.Queue.URL != "" {
		opts, err := redis.ParseURL(cfg.Queue.URL)
		if err != nil {
			return fmt.Errorf("parsing queue URL: %w", err)
		}
		queueClient = redis.NewClient(opts)
		defer queueClient.Close()
	} else {
		logger.Info("queue URL not configured; polling database only")
	}
	acquirer := worker.NewAcquirer(queueClient, cfg.Queue.QueueName, jobRepo, controller, cfg.Worker.PollInterval, logger)

	// Stale-job reaper
	reaper := worker.NewReaper(jobRepo, workspace, cfg.Worker.StaleJobAge, cfg.Worker.ReaperCron, logger)
	if err := reaper.Start(); err != nil {
		return fmt.Errorf("starting reaper: %w", err)
	}
	defer reaper.Stop()

	// HTTP API
	server := internalhttp.NewServer(cfg.Server, logger, version.Short())
	handlers.NewHealthHandler(acquirer).Register(server.API())
	handlers.NewRenderHandler(cfg.Server.SharedSecret, acquirer, renditions, logger).Register(server.API())

	acquirerDone := make(chan struct{})
	go func() {
		defer close(acquirerDone)
		acquirer.Run(ctx)
	}()

	logger.Info("clipforge worker started",
		slog.String("version", version.Short()),
		slog.String("address", cfg.Server.Address()),
		slog.Bool("queue_enabled", queueClient != nil),
	)

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("running http server: %w", err)
	}

	// Wait for an in-flight render to finish before tearing down.
	<-acquirerDone
	logger.Info("clipforge worker stopped")
	return nil
}

// loadConfig builds the worker configuration from the viper instance the
// root command already populated with defaults, file, env, and flags.
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
