package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/vidwrk/internal/config"
	"github.com/onnwee/vidwrk/internal/metrics"
	"github.com/onnwee/vidwrk/internal/queue"
	"github.com/onnwee/vidwrk/internal/repository"
	"github.com/onnwee/vidwrk/internal/taskerr"
	"github.com/onnwee/vidwrk/internal/testutil"
)

// counterValue reads back the current value of one label combination,
// asserting against the literal status strings spec.md §8 names
// ("processed", "failed"), not just that some counter moved.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labelValues ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labelValues...).Write(m))
	return m.GetCounter().GetValue()
}

func newTestProcessor(t *testing.T) (*Processor, *testutil.FakeQueue, *testutil.FakeRepository, *testutil.FakeStorage, *testutil.FakeTranscoder) {
	t.Helper()
	q := testutil.NewFakeQueue()
	repo := testutil.NewFakeRepository()
	store := testutil.NewFakeStorage()
	tc := &testutil.FakeTranscoder{}

	p := &Processor{
		Queue:      q,
		Repo:       repo,
		Storage:    store,
		Transcoder: tc,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		NewID:      func() string { return "fixed-processed-id" },
	}
	return p, q, repo, store, tc
}

func envelopeFor(taskID, videoID string) queue.Envelope {
	return queue.Envelope{
		BrokerID: "broker-1",
		Task: queue.Task{
			TaskID:     taskID,
			VideoID:    videoID,
			SourcePath: "raw/" + videoID,
		},
		RawPayload: map[string]interface{}{
			"task_id":     taskID,
			"video_id":    videoID,
			"source_path": "raw/" + videoID,
		},
	}
}

// Scenario A: happy path.
func TestProcessOne_HappyPath(t *testing.T) {
	p, q, repo, store, _ := newTestProcessor(t)

	repo.Seed(repository.Video{ID: "v1", RawBlobID: "raw/v1", Status: repository.StatusUploaded})
	store.Put("raw/v1", []byte("raw-bytes"))
	q.Enqueue(envelopeFor("t1", "v1"))

	err := p.ProcessOne(context.Background(), "w1")
	require.NoError(t, err)

	require.Len(t, q.Acked, 1)
	require.Empty(t, q.Failed)

	row, ok := repo.Row("v1")
	require.True(t, ok)
	require.Equal(t, repository.StatusProcessed, row.Status)
	require.True(t, row.ProcessedID.Valid)
	require.Equal(t, "fixed-processed-id", row.ProcessedID.String)
	require.Equal(t, "fixed-processed-id.mp4", row.ProcessedURL.String)

	data, ok := store.Get("fixed-processed-id.mp4")
	require.True(t, ok)
	require.Equal(t, []byte("raw-bytes"), data)

	require.Equal(t, float64(1), counterValue(t, p.Metrics.TasksProcessed, "processed", "w1"))
}

func TestProcessOne_UsesInjectedClockForProcessedAt(t *testing.T) {
	p, q, repo, store, _ := newTestProcessor(t)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.Clock = config.FixedTimestampGenerator{Timestamp: fixed}

	repo.Seed(repository.Video{ID: "v1", RawBlobID: "raw/v1", Status: repository.StatusUploaded})
	store.Put("raw/v1", []byte("raw-bytes"))
	q.Enqueue(envelopeFor("t1", "v1"))

	require.NoError(t, p.ProcessOne(context.Background(), "w1"))

	row, ok := repo.Row("v1")
	require.True(t, ok)
	require.True(t, row.ProcessedAt.Valid)
	require.True(t, row.ProcessedAt.Time.Equal(fixed))
}

// Scenario B: no messages available is a quiet success.
func TestProcessOne_NoMessages(t *testing.T) {
	p, _, _, _, _ := newTestProcessor(t)
	err := p.ProcessOne(context.Background(), "w1")
	require.NoError(t, err)
}

// Scenario: missing video row.
func TestProcessOne_MissingRow(t *testing.T) {
	p, q, _, _, _ := newTestProcessor(t)
	q.Enqueue(envelopeFor("t1", "missing"))

	err := p.ProcessOne(context.Background(), "w1")
	require.Error(t, err)

	var notFound taskerr.RecordNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Len(t, q.Failed, 1)
	require.Empty(t, q.Acked)

	require.Equal(t, float64(1), counterValue(t, p.Metrics.TasksProcessed, "failed", "w1"))
}

// Scenario C: storage download failure triggers a compensating reset and a
// queue-fail, without touching the queue's Ack path.
func TestProcessOne_DownloadFailureResetsRow(t *testing.T) {
	p, q, repo, store, _ := newTestProcessor(t)

	repo.Seed(repository.Video{
		ID: "v1", RawBlobID: "raw/v1", Status: repository.StatusProcessed,
		ProcessedID: sql.NullString{String: "stale-id", Valid: true},
	})
	store.DownloadErr = errors.New("connection reset")
	q.Enqueue(envelopeFor("t1", "v1"))

	err := p.ProcessOne(context.Background(), "w1")
	require.Error(t, err)

	var storageErr taskerr.StorageTransientError
	require.True(t, errors.As(err, &storageErr))

	row, ok := repo.Row("v1")
	require.True(t, ok)
	require.Equal(t, repository.StatusUploaded, row.Status)
	require.False(t, row.ProcessedID.Valid)

	require.Len(t, q.Failed, 1)
}

// Scenario D: transcode failure, same compensating behavior.
func TestProcessOne_TranscodeFailure(t *testing.T) {
	p, q, repo, store, tc := newTestProcessor(t)

	repo.Seed(repository.Video{ID: "v1", RawBlobID: "raw/v1", Status: repository.StatusUploaded})
	store.Put("raw/v1", []byte("raw-bytes"))
	tc.Err = errors.New("ffmpeg exited 1")
	q.Enqueue(envelopeFor("t1", "v1"))

	err := p.ProcessOne(context.Background(), "w1")
	require.Error(t, err)

	var transcodeErr taskerr.TranscodeFailedError
	require.True(t, errors.As(err, &transcodeErr))

	row, ok := repo.Row("v1")
	require.True(t, ok)
	require.Equal(t, repository.StatusUploaded, row.Status)

	require.Len(t, q.Failed, 1)
}

// Scenario E: persistence failure after a successful upload leaves the
// uploaded artifact in storage (the one acceptable inconsistency window).
func TestProcessOne_PersistenceFailureAfterUpload(t *testing.T) {
	p, q, repo, store, _ := newTestProcessor(t)

	repo.Seed(repository.Video{ID: "v1", RawBlobID: "raw/v1", Status: repository.StatusUploaded})
	store.Put("raw/v1", []byte("raw-bytes"))
	repo.UpdateErr = errors.New("connection refused")
	q.Enqueue(envelopeFor("t1", "v1"))

	err := p.ProcessOne(context.Background(), "w1")
	require.Error(t, err)

	var persistErr taskerr.PersistenceFailedError
	require.True(t, errors.As(err, &persistErr))

	_, ok := store.Get("fixed-processed-id.mp4")
	require.True(t, ok, "uploaded artifact should remain in storage despite the row update failure")

	require.Len(t, q.Failed, 1)
	require.Empty(t, q.Acked)
}

// Scenario F: a per-task processing timeout shorter than the transcoder's
// natural duration surfaces as a transcode failure and is retried, not
// treated as a crash.
func TestProcessOne_ProcessingTimeout(t *testing.T) {
	p, q, repo, store, tc := newTestProcessor(t)

	repo.Seed(repository.Video{ID: "v1", RawBlobID: "raw/v1", Status: repository.StatusUploaded})
	store.Put("raw/v1", []byte("raw-bytes"))
	p.ProcessingTimeout = time.Nanosecond
	tc.Err = context.DeadlineExceeded
	q.Enqueue(envelopeFor("t1", "v1"))

	err := p.ProcessOne(context.Background(), "w1")
	require.Error(t, err)

	var transcodeErr taskerr.TranscodeFailedError
	require.True(t, errors.As(err, &transcodeErr))
	require.Len(t, q.Failed, 1)
}

// Queue transport errors on fetch propagate without consuming a message.
func TestProcessOne_QueueTransportError(t *testing.T) {
	p, q, _, _, _ := newTestProcessor(t)
	q.FetchErr = errors.New("broker unreachable")

	err := p.ProcessOne(context.Background(), "w1")
	require.Error(t, err)
	require.Empty(t, q.Acked)
	require.Empty(t, q.Failed)
}
