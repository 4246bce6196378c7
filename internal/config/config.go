package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Store     StoreConfig
	Queue     QueueConfig
	S3        S3Config
	Media     MediaConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig selects where music job records live.
type StoreConfig struct {
	Driver      string // "redis" or "postgres"
	DatabaseURL string
	Retention   time.Duration // redis only, 0 keeps records forever
}

type QueueConfig struct {
	Name        string
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Retention   time.Duration
}

type S3Config struct {
	EndpointURL     string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
	MusicFolder     string
	ArtworkFolder   string
	OriginalsFolder string
}

type MediaConfig struct {
	FFmpegBinary string
	YtdlpBinary  string
	Bitrate      string
	TempDir      string
	HTTPTimeout  int // seconds
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	JobsPerHour int
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("DATABASE_URL")
	readSecret("AWS_ACCESS_KEY_ID")
	readSecret("AWS_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.log_format", "LOG_FORMAT")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("store.driver", "STORE_DRIVER")
	_ = viper.BindEnv("store.database_url", "DATABASE_URL")
	_ = viper.BindEnv("store.retention", "STORE_RETENTION")
	_ = viper.BindEnv("queue.name", "QUEUE_NAME")
	_ = viper.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = viper.BindEnv("queue.max_attempts", "QUEUE_MAX_ATTEMPTS")
	_ = viper.BindEnv("queue.backoff_base", "QUEUE_BACKOFF_BASE")
	_ = viper.BindEnv("queue.backoff_max", "QUEUE_BACKOFF_MAX")
	_ = viper.BindEnv("queue.retention", "QUEUE_RETENTION")
	_ = viper.BindEnv("s3.endpoint_url", "AWS_ENDPOINT_URL")
	_ = viper.BindEnv("s3.region", "AWS_REGION_NAME")
	_ = viper.BindEnv("s3.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = viper.BindEnv("s3.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("s3.bucket", "AWS_S3_BUCKET")
	_ = viper.BindEnv("s3.public_url", "AWS_S3_PUBLIC_URL")
	_ = viper.BindEnv("s3.music_folder", "AWS_S3_MUSIC_FOLDER")
	_ = viper.BindEnv("s3.artwork_folder", "AWS_S3_ARTWORK_FOLDER")
	_ = viper.BindEnv("s3.originals_folder", "AWS_S3_ORIGINALS_FOLDER")
	_ = viper.BindEnv("media.ffmpeg_binary", "FFMPEG_BINARY")
	_ = viper.BindEnv("media.ytdlp_binary", "YTDLP_BINARY")
	_ = viper.BindEnv("media.bitrate", "MEDIA_BITRATE")
	_ = viper.BindEnv("media.temp_dir", "MEDIA_TEMP_DIR")
	_ = viper.BindEnv("media.http_timeout", "MEDIA_HTTP_TIMEOUT")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.log_format", "auto")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Store defaults
	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.retention", 0)

	// Queue defaults
	viper.SetDefault("queue.name", "music")
	viper.SetDefault("queue.concurrency", 4)
	viper.SetDefault("queue.max_attempts", 3)
	viper.SetDefault("queue.backoff_base", 10*time.Second)
	viper.SetDefault("queue.backoff_max", 10*time.Minute)
	viper.SetDefault("queue.retention", 24*time.Hour)

	// Storage defaults
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.music_folder", "music")
	viper.SetDefault("s3.artwork_folder", "artwork")
	viper.SetDefault("s3.originals_folder", "originals")

	// Media tool defaults
	viper.SetDefault("media.ffmpeg_binary", "ffmpeg")
	viper.SetDefault("media.ytdlp_binary", "yt-dlp")
	viper.SetDefault("media.bitrate", "320k")
	viper.SetDefault("media.temp_dir", "temp")
	viper.SetDefault("media.http_timeout", 600)

	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("ratelimit.jobs_per_hour", 30)
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			LogFormat: viper.GetString("server.log_format"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(viper.GetString("store.driver")),
			DatabaseURL: viper.GetString("store.database_url"),
			Retention:   viper.GetDuration("store.retention"),
		},
		Queue: QueueConfig{
			Name:        viper.GetString("queue.name"),
			Concurrency: viper.GetInt("queue.concurrency"),
			MaxAttempts: viper.GetInt("queue.max_attempts"),
			BackoffBase: viper.GetDuration("queue.backoff_base"),
			BackoffMax:  viper.GetDuration("queue.backoff_max"),
			Retention:   viper.GetDuration("queue.retention"),
		},
		S3: S3Config{
			EndpointURL:     viper.GetString("s3.endpoint_url"),
			Region:          viper.GetString("s3.region"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			Bucket:          viper.GetString("s3.bucket"),
			PublicURL:       viper.GetString("s3.public_url"),
			MusicFolder:     viper.GetString("s3.music_folder"),
			ArtworkFolder:   viper.GetString("s3.artwork_folder"),
			OriginalsFolder: viper.GetString("s3.originals_folder"),
		},
		Media: MediaConfig{
			FFmpegBinary: viper.GetString("media.ffmpeg_binary"),
			YtdlpBinary:  viper.GetString("media.ytdlp_binary"),
			Bitrate:      viper.GetString("media.bitrate"),
			TempDir:      viper.GetString("media.temp_dir"),
			HTTPTimeout:  viper.GetInt("media.http_timeout"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour: viper.GetInt("ratelimit.jobs_per_hour"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	if cfg.Queue.MaxAttempts < 1 {
		cfg.Queue.MaxAttempts = 1
	}

	return cfg, nil
}
