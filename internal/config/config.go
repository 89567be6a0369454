// Package config resolves and validates runtime parameters for the worker
// from environment variables and an optional env file, producing an
// immutable Config. Parsing is layered with peterbourgon/ff/v3 over a
// flag.FlagSet, exactly as the wider stack's own command-line entrypoints do.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
)

const EnvVarPrefix = "VIDWRK"

type QueueBackendKind string

const (
	QueueBackendStream             QueueBackendKind = "stream"
	QueueBackendVisibilityTimeout  QueueBackendKind = "visibility-timeout"
)

type StorageBackendKind string

const (
	StorageBackendWebDAV StorageBackendKind = "webdav"
	StorageBackendS3     StorageBackendKind = "s3"
)

// Config is the fully resolved, validated, immutable runtime configuration.
// It is only ever produced by Load; there is no partially-initialized form.
type Config struct {
	AppName  string
	LogLevel string

	DatabaseDSN string

	QueueBackend QueueBackendKind
	Stream       StreamConfig
	Visibility   VisibilityTimeoutConfig

	StorageBackend StorageBackendKind
	WebDAV         WebDAVConfig
	S3             S3Config

	WorkerPoolSize      int
	ProcessingTimeout   time.Duration
	MetricsListenAddr   string
	ShutdownGracePeriod time.Duration

	TempDir      string
	TargetWidth  int
	TargetHeight int
}

type StreamConfig struct {
	BrokerAddress      string
	Username           string
	Password           string
	StreamName         string
	ConsumerGroup      string
	ConsumerNamePrefix string
	BlockTimeout       time.Duration
	MaxDeliveries      int
}

type VisibilityTimeoutConfig struct {
	QueueURL            string
	Region              string
	LongPollWaitSeconds int
	MaxDeliveries       int
}

type WebDAVConfig struct {
	BaseURL  string
	RootPath string
	Username string
	Password string
}

type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	KeyPrefix string
}

// Load parses environment variables (prefixed VIDWRK_) and, if -config (env
// VIDWRK_CONFIG) names a file, plain KEY=VALUE lines from that file, with
// flag defaults as the final fallback. It fails fast with a descriptive
// error on any missing required field or incompletely configured backend.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("vidwrk-worker", flag.ContinueOnError)

	var cfg Config
	var queueBackend, storageBackend string

	fs.StringVar(&cfg.AppName, "app-name", "vidwrk-worker", "application name, used in logs and metrics")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")

	fs.StringVar(&cfg.DatabaseDSN, "database-dsn", "", "PostgreSQL connection string (required)")

	fs.StringVar(&queueBackend, "queue-backend", string(QueueBackendStream), "queue backend: stream or visibility-timeout")
	fs.StringVar(&cfg.Stream.BrokerAddress, "stream-broker-address", "", "stream broker address")
	fs.StringVar(&cfg.Stream.Username, "stream-username", "", "stream broker username")
	fs.StringVar(&cfg.Stream.Password, "stream-password", "", "stream broker password")
	fs.StringVar(&cfg.Stream.StreamName, "stream-name", "video-tasks", "stream/topic name")
	fs.StringVar(&cfg.Stream.ConsumerGroup, "stream-consumer-group", "vidwrk-workers", "consumer group name")
	fs.StringVar(&cfg.Stream.ConsumerNamePrefix, "stream-consumer-name-prefix", "vidwrk-worker", "consumer name prefix")
	fs.DurationVar(&cfg.Stream.BlockTimeout, "stream-block-timeout", 5*time.Second, "blocking read timeout")
	fs.IntVar(&cfg.Stream.MaxDeliveries, "stream-max-deliveries", 5, "maximum delivery attempts before dead-lettering")

	fs.StringVar(&cfg.Visibility.QueueURL, "vt-queue-url", "", "visibility-timeout queue URL")
	fs.StringVar(&cfg.Visibility.Region, "vt-region", "us-east-1", "visibility-timeout queue region")
	fs.IntVar(&cfg.Visibility.LongPollWaitSeconds, "vt-long-poll-wait-seconds", 10, "long-poll wait seconds")
	fs.IntVar(&cfg.Visibility.MaxDeliveries, "vt-max-deliveries", 5, "maximum delivery attempts before dead-lettering")

	fs.StringVar(&storageBackend, "storage-backend", "", "storage backend: webdav or s3 (required)")
	fs.StringVar(&cfg.WebDAV.BaseURL, "webdav-base-url", "", "WebDAV server base URL")
	fs.StringVar(&cfg.WebDAV.RootPath, "webdav-root-path", "", "WebDAV root path")
	fs.StringVar(&cfg.WebDAV.Username, "webdav-username", "", "WebDAV username")
	fs.StringVar(&cfg.WebDAV.Password, "webdav-password", "", "WebDAV password")

	fs.StringVar(&cfg.S3.Bucket, "s3-bucket", "", "S3 bucket (required when storage-backend=s3)")
	fs.StringVar(&cfg.S3.Region, "s3-region", "us-east-1", "S3 region")
	fs.StringVar(&cfg.S3.AccessKey, "s3-access-key", "", "S3 static access key")
	fs.StringVar(&cfg.S3.SecretKey, "s3-secret-key", "", "S3 static secret key")
	fs.StringVar(&cfg.S3.Endpoint, "s3-endpoint", "", "custom S3-compatible endpoint")
	fs.StringVar(&cfg.S3.KeyPrefix, "s3-key-prefix", "", "key prefix applied to uploaded objects")

	fs.IntVar(&cfg.WorkerPoolSize, "worker-pool-size", 4, "number of concurrent worker loops")
	fs.DurationVar(&cfg.ProcessingTimeout, "processing-timeout", 5*time.Minute, "per-task processing timeout (0 disables)")
	fs.StringVar(&cfg.MetricsListenAddr, "metrics-listen-addr", "0.0.0.0:9090", "metrics HTTP listen address")
	fs.DurationVar(&cfg.ShutdownGracePeriod, "shutdown-grace-period", 20*time.Second, "grace period for metrics server shutdown (worker loops are not bounded by it)")

	fs.StringVar(&cfg.TempDir, "temp-dir", "", "directory for transcoder scratch files (defaults to os.TempDir)")
	fs.IntVar(&cfg.TargetWidth, "target-width", 720, "output frame width")
	fs.IntVar(&cfg.TargetHeight, "target-height", 1280, "output frame height")

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix(EnvVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.QueueBackend = QueueBackendKind(strings.ToLower(queueBackend))
	cfg.StorageBackend = StorageBackendKind(strings.ToLower(storageBackend))

	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database-dsn is required")
	}

	switch c.QueueBackend {
	case QueueBackendStream:
		if c.Stream.BrokerAddress == "" {
			return fmt.Errorf("stream-broker-address is required when queue-backend=stream")
		}
		if c.Stream.StreamName == "" {
			return fmt.Errorf("stream-name is required when queue-backend=stream")
		}
		if c.Stream.ConsumerGroup == "" {
			return fmt.Errorf("stream-consumer-group is required when queue-backend=stream")
		}
	case QueueBackendVisibilityTimeout:
		if c.Visibility.QueueURL == "" {
			return fmt.Errorf("vt-queue-url is required when queue-backend=visibility-timeout")
		}
	default:
		return fmt.Errorf("queue-backend must be %q or %q, got %q", QueueBackendStream, QueueBackendVisibilityTimeout, c.QueueBackend)
	}

	switch c.StorageBackend {
	case StorageBackendWebDAV:
		if c.WebDAV.BaseURL == "" || c.WebDAV.RootPath == "" || c.WebDAV.Username == "" || c.WebDAV.Password == "" {
			return fmt.Errorf("webdav-base-url, webdav-root-path, webdav-username, and webdav-password are all required when storage-backend=webdav")
		}
	case StorageBackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3-bucket is required when storage-backend=s3")
		}
	default:
		return fmt.Errorf("storage-backend must be %q or %q, got %q", StorageBackendWebDAV, StorageBackendS3, c.StorageBackend)
	}

	return nil
}
