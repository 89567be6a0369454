// Package bootstrap wires a fully resolved Config into concrete storage and
// queue backends and a ready-to-run Processor, the one place in the module
// that knows about every adapter implementation.
package bootstrap

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/onnwee/vidwrk/internal/config"
	"github.com/onnwee/vidwrk/internal/metrics"
	"github.com/onnwee/vidwrk/internal/queue"
	"github.com/onnwee/vidwrk/internal/repository"
	"github.com/onnwee/vidwrk/internal/storage"
	"github.com/onnwee/vidwrk/internal/transcode"
	"github.com/onnwee/vidwrk/internal/worker"
)

// Components holds everything built from Config that the worker pool and
// metrics server need, plus the database handle so the caller can close it
// on shutdown.
type Components struct {
	DB       *sql.DB
	Metrics  *metrics.Recorder
	Registry *prometheus.Registry
	Repo     repository.Repository
	Storage  storage.Backend
}

// Build opens the database and storage backend once, shared across all
// worker goroutines. Queue adapters are NOT shared: NewQueue must be called
// once per worker since each owns its own broker connection/consumer.
func Build(cfg config.Config) (*Components, error) {
	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	backend, err := NewStorage(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Components{
		DB:       db,
		Metrics:  metrics.New(registry),
		Registry: registry,
		Repo:     repository.NewPostgresRepository(db),
		Storage:  backend,
	}, nil
}

// NewStorage constructs the configured storage backend.
func NewStorage(cfg config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return storage.NewS3Backend(cfg.S3)
	case config.StorageBackendWebDAV:
		return storage.NewWebDAVBackend(cfg.WebDAV), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown storage backend %q", cfg.StorageBackend)
	}
}

// NewQueue constructs a queue adapter owned by one worker. workerID labels
// the adapter's queue metrics; the stream backend prefixes it with the
// configured consumer-name prefix.
func NewQueue(cfg config.Config, workerID string, rec *metrics.Recorder) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendStream:
		return queue.NewKafkaQueue(cfg.Stream, workerID, rec)
	case config.QueueBackendVisibilityTimeout:
		return queue.NewSQSQueue(cfg.Visibility, workerID, rec)
	default:
		return nil, fmt.Errorf("bootstrap: unknown queue backend %q", cfg.QueueBackend)
	}
}

// NewProcessor builds a Processor bound to a per-worker queue instance and
// the shared components.
func NewProcessor(cfg config.Config, c *Components, q queue.Queue) *worker.Processor {
	return &worker.Processor{
		Queue:             q,
		Repo:              c.Repo,
		Storage:           c.Storage,
		Transcoder:        transcode.NewFFmpegEngine(cfg.TempDir),
		Metrics:           c.Metrics,
		ProcessingTimeout: cfg.ProcessingTimeout,
		TargetWidth:       cfg.TargetWidth,
		TargetHeight:      cfg.TargetHeight,
	}
}
