// Command vidwrk-worker runs a pool of queue-driven video transcode workers.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/vidwrk/internal/bootstrap"
	"github.com/onnwee/vidwrk/internal/config"
	"github.com/onnwee/vidwrk/internal/logging"
	"github.com/onnwee/vidwrk/internal/metrics"
	"github.com/onnwee/vidwrk/internal/taskerr"
	"github.com/onnwee/vidwrk/internal/worker"
)

func main() {
	if err := run(); err != nil {
		logging.LogNoTaskID("fatal startup error", "err", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	components, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	defer components.DB.Close()

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return handleSignals(ctx)
	})

	metricsServer := metrics.NewServer(cfg.MetricsListenAddr, components.Registry)
	group.Go(func() error {
		logging.LogNoTaskID("metrics server listening", "addr", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	for i := 0; i < cfg.WorkerPoolSize; i++ {
		workerID := workerIDFor(i)
		q, err := bootstrap.NewQueue(cfg, workerID, components.Metrics)
		if err != nil {
			return err
		}
		processor := bootstrap.NewProcessor(cfg, components, q)

		group.Go(func() error {
			defer closeIfCloser(q)
			return runWorkerLoop(ctx, processor, workerID)
		})
	}

	logging.LogNoTaskID("worker pool started", "pool_size", cfg.WorkerPoolSize, "queue_backend", string(cfg.QueueBackend), "storage_backend", string(cfg.StorageBackend))

	err = group.Wait()
	logging.LogNoTaskID("shutdown complete", "reason", reasonString(err))
	return err
}

// runWorkerLoop repeatedly processes one task at a time until ctx is
// cancelled. A queue transport error pauses briefly before retrying rather
// than tearing down the whole pool.
func runWorkerLoop(ctx context.Context, p *worker.Processor, workerID string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := p.ProcessOne(ctx, workerID); err != nil {
			if errors.Is(err, taskerr.ErrNoMessages) {
				continue
			}
			logging.LogError(workerID, "process one failed, pausing before retry", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
}

func workerIDFor(i int) string {
	return "worker-" + strconv.Itoa(i)
}

func closeIfCloser(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

func reasonString(err error) string {
	if err == nil {
		return "clean"
	}
	return err.Error()
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	for {
		select {
		case s := <-c:
			logging.LogNoTaskID("caught signal, attempting clean shutdown", "signal", s.String())
			return errors.New("caught signal: " + s.String())
		case <-ctx.Done():
			return nil
		}
	}
}
