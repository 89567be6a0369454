// Package worker implements the process-task use case: fetch one message,
// drive it through download/transcode/upload/persist, and ack or fail it.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/vidwrk/internal/config"
	"github.com/onnwee/vidwrk/internal/logging"
	"github.com/onnwee/vidwrk/internal/metrics"
	"github.com/onnwee/vidwrk/internal/queue"
	"github.com/onnwee/vidwrk/internal/repository"
	"github.com/onnwee/vidwrk/internal/storage"
	"github.com/onnwee/vidwrk/internal/taskerr"
	"github.com/onnwee/vidwrk/internal/transcode"
)

const processedExt = "mp4"

// Processor holds the collaborators the process-task use case is written
// against, each as an interface so tests can substitute fakes.
type Processor struct {
	Queue      queue.Queue
	Repo       repository.Repository
	Storage    storage.Backend
	Transcoder transcode.Engine
	Metrics    *metrics.Recorder

	ProcessingTimeout time.Duration
	TargetWidth       int
	TargetHeight      int
	RemoveAudio       bool

	// NewID generates the processed-blob id. Defaults to uuid.NewString;
	// overridable in tests for deterministic output paths.
	NewID func() string

	// Clock stamps processed-at. Defaults to config.RealTimestampGenerator;
	// tests substitute config.FixedTimestampGenerator for a deterministic value.
	Clock config.TimestampGenerator
}

func (p *Processor) clock() config.TimestampGenerator {
	if p.Clock != nil {
		return p.Clock
	}
	return config.RealTimestampGenerator{}
}

func (p *Processor) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

// ProcessOne fetches and fully handles at most one message. It returns nil
// when there is nothing to do and when the task succeeds. A fetch error is
// returned as is; a task that fails after it was fetched is failed back to
// the queue and its classified taskerr error is returned.
func (p *Processor) ProcessOne(ctx context.Context, workerID string) error {
	env, err := p.Queue.Fetch(ctx)
	if err != nil {
		if err == taskerr.ErrNoMessages {
			return nil
		}
		return err
	}

	taskID := env.Task.TaskID
	logging.AddContext(taskID, "video_id", env.Task.VideoID, "worker_id", workerID)

	start := time.Now()
	status := "uploaded"
	observe := func() {
		if p.Metrics != nil {
			p.Metrics.ProcessingTime.WithLabelValues(status, workerID).Observe(time.Since(start).Seconds())
			p.Metrics.TasksProcessed.WithLabelValues(status, workerID).Inc()
		}
	}

	video, err := p.Repo.FindByID(ctx, env.Task.VideoID)
	if err != nil {
		status = "failed"
		observe()
		logging.LogError(taskID, "video row not found", err)
		wrapped := taskerr.RecordNotFound(env.Task.VideoID, err)
		_ = p.Queue.Fail(ctx, env, wrapped)
		return wrapped
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if p.ProcessingTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, p.ProcessingTimeout)
		defer cancel()
	}

	raw, err := p.Storage.Download(taskCtx, video.RawBlobID)
	if err != nil {
		status = "failed"
		return p.failTask(ctx, env, video, observe,
			taskerr.StorageTransient(fmt.Errorf("download: %w", err)))
	}

	artifact, err := p.Transcoder.Transform(taskCtx, taskID, raw, transcode.Options{
		TargetWidth:  p.TargetWidth,
		TargetHeight: p.TargetHeight,
		ContainerExt: processedExt,
		RemoveAudio:  p.RemoveAudio,
	})
	_ = closeQuietly(raw)
	if err != nil {
		if taskCtx.Err() != nil {
			logging.Log(taskID, "transcode timed out, will retry or dead-letter")
		}
		status = "failed"
		return p.failTask(ctx, env, video, observe,
			taskerr.TranscodeFailed(err))
	}
	defer artifact.Close()

	processedID := p.newID()
	processedPath := processedID + "." + processedExt

	if err := p.Storage.Upload(taskCtx, processedPath, artifact); err != nil {
		status = "failed"
		return p.failTask(ctx, env, video, observe,
			taskerr.StorageTransient(fmt.Errorf("upload: %w", err)))
	}

	now := p.clock().GetTime().UTC()
	upd := repository.Update{
		Status:       repository.StatusProcessed,
		ProcessedID:  sql.NullString{String: processedID, Valid: true},
		ProcessedURL: sql.NullString{String: processedPath, Valid: true},
		ProcessedAt:  sql.NullTime{Time: now, Valid: true},
	}
	if err := p.Repo.Update(taskCtx, video.ID, upd); err != nil {
		status = "failed"
		observe()
		logging.LogError(taskID, "persist processed state failed after successful upload", err)
		wrapped := taskerr.PersistenceFailed(err)
		_ = p.Queue.Fail(ctx, env, wrapped)
		return wrapped
	}

	status = "processed"
	observe()
	if err := p.Queue.Ack(ctx, env); err != nil {
		logging.LogError(taskID, "ack failed, row is authoritative", err)
	}
	logging.Log(taskID, "task processed successfully", "processed_id", processedID)
	return nil
}

// failTask resets the row to uploaded (undoing any partial processed-state
// fields), records the terminal-failure metrics, asks the queue to fail the
// message, and returns the classified error. Callers must set the outer
// status label to "failed" before invoking this so observe() records it.
func (p *Processor) failTask(ctx context.Context, env queue.Envelope, video repository.Video, observe func(), cause error) error {
	resetErr := p.Repo.Update(ctx, video.ID, repository.Update{
		Status:       repository.StatusUploaded,
		ProcessedID:  sql.NullString{},
		ProcessedURL: sql.NullString{},
		ProcessedAt:  sql.NullTime{},
	})
	if resetErr != nil {
		logging.LogError(env.Task.TaskID, "compensating reset to uploaded failed", resetErr)
	}

	observe()
	logging.LogError(env.Task.TaskID, "task failed", cause)
	_ = p.Queue.Fail(ctx, env, cause)
	return cause
}

func closeQuietly(r io.ReadCloser) error {
	if r == nil {
		return nil
	}
	return r.Close()
}
