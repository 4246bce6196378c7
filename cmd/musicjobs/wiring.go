package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/dripdrop/musicjobs/internal/acquire"
	"github.com/dripdrop/musicjobs/internal/artwork"
	"github.com/dripdrop/musicjobs/internal/broadcast"
	"github.com/dripdrop/musicjobs/internal/client"
	"github.com/dripdrop/musicjobs/internal/config"
	"github.com/dripdrop/musicjobs/internal/publish"
	"github.com/dripdrop/musicjobs/internal/queue"
	"github.com/dripdrop/musicjobs/internal/service"
	"github.com/dripdrop/musicjobs/internal/store"
	"github.com/dripdrop/musicjobs/internal/worker"
	"github.com/dripdrop/musicjobs/internal/workspace"
)

// components holds everything built from configuration. Callers close it
// when done.
type components struct {
	cfg    *config.Config
	logger *slog.Logger

	redis       *redis.Client
	asynqClient *asynq.Client
	db          *sql.DB

	store       store.JobStore
	storage     client.StorageClient
	enqueuer    *queue.Enqueuer
	broadcaster *broadcast.Broadcaster
	service     *service.MusicService
	music       *worker.MusicWorker
	cleanup     *worker.CleanupWorker
}

func newComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	c.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := c.redis.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	switch cfg.Store.Driver {
	case "", "redis":
		c.store = store.NewRedisJobStore(c.redis, cfg.Store.Retention)
	case "postgres":
		db, err := store.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			c.close()
			return nil, err
		}
		c.db = db
		c.store = store.NewPostgresJobStore(db, logger)
	default:
		c.close()
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	storage, err := client.NewS3Client(&cfg.S3)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	c.storage = storage

	c.asynqClient = asynq.NewClient(queue.RedisOpt(cfg.Redis))
	c.enqueuer = queue.NewEnqueuer(c.asynqClient, cfg.Queue)
	c.broadcaster = broadcast.New(c.redis, broadcast.ChannelJobUpdate, logger)

	httpClient := &http.Client{Timeout: time.Duration(cfg.Media.HTTPTimeout) * time.Second}
	resolver := artwork.NewResolver(httpClient, logger)
	ytdlp := client.NewYtdlpClient(cfg.Media.YtdlpBinary)

	c.service = service.NewMusicService(
		c.store,
		c.storage,
		c.enqueuer,
		resolver,
		ytdlp,
		c.broadcaster,
		cfg.S3,
		cfg.Media.TempDir,
		logger,
	)

	c.music = worker.NewMusicWorker(
		c.store,
		workspace.NewManager(cfg.Media.TempDir, logger),
		acquire.New(httpClient, client.NewFFmpegClient(cfg.Media.FFmpegBinary, cfg.Media.Bitrate), ytdlp, logger),
		resolver,
		publish.New(c.storage, cfg.S3.MusicFolder),
		c.broadcaster,
		logger,
	)
	c.cleanup = worker.NewCleanupWorker(c.service, logger)

	return c, nil
}

// newWorkerServer builds the asynq server running music and cleanup tasks.
func (c *components) newWorkerServer() (*asynq.Server, *asynq.ServeMux) {
	srv := queue.NewServer(queue.RedisOpt(c.cfg.Redis), c.cfg, c.logger, asynq.ErrorHandlerFunc(c.music.OnExhaustedRetries))
	mux := queue.Table{
		queue.KindProcessMusic: asynq.HandlerFunc(c.music.ProcessTask),
		queue.KindCleanupMusic: asynq.HandlerFunc(c.cleanup.ProcessTask),
	}.Mux()
	return srv, mux
}

func (c *components) health() fiber.Map {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	services := fiber.Map{
		"redis":   c.redis.Ping(ctx).Err() == nil,
		"storage": c.storage != nil,
		"store":   c.cfg.Store.Driver,
	}
	if c.db != nil {
		services["postgres"] = c.db.PingContext(ctx) == nil
	}
	return services
}

func (c *components) close() error {
	var err error
	if c.asynqClient != nil {
		err = multierr.Append(err, c.asynqClient.Close())
	}
	if c.db != nil {
		err = multierr.Append(err, c.db.Close())
	}
	if c.redis != nil {
		err = multierr.Append(err, c.redis.Close())
	}
	return err
}
