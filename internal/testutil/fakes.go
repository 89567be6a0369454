// Package testutil provides in-memory fakes for the worker's collaborator
// interfaces, used to drive the end-to-end process-task scenarios without a
// live broker, database, or ffmpeg binary.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/onnwee/vidwrk/internal/queue"
	"github.com/onnwee/vidwrk/internal/repository"
	"github.com/onnwee/vidwrk/internal/taskerr"
	"github.com/onnwee/vidwrk/internal/transcode"
)

// FakeStorage is an in-memory storage.Backend.
type FakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	DownloadErr error
	UploadErr   error
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{objects: map[string][]byte{}}
}

func (s *FakeStorage) Put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
}

func (s *FakeStorage) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	return b, ok
}

func (s *FakeStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	if s.DownloadErr != nil {
		return nil, s.DownloadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	if !ok {
		return nil, errors.New("fake storage: not found: " + path)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *FakeStorage) Upload(ctx context.Context, path string, body io.Reader) error {
	if s.UploadErr != nil {
		return s.UploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return nil
}

// FakeQueue is an in-memory queue.Queue that hands out pending envelopes in
// FIFO order, recording Ack/Fail calls for assertions.
type FakeQueue struct {
	mu sync.Mutex

	Pending   []queue.Envelope
	Acked     []queue.Envelope
	Failed    []queue.Envelope
	FailCause []error

	FetchErr error
}

func NewFakeQueue() *FakeQueue {
	return &FakeQueue{}
}

func (q *FakeQueue) Enqueue(env queue.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Pending = append(q.Pending, env)
}

func (q *FakeQueue) Fetch(ctx context.Context) (queue.Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FetchErr != nil {
		return queue.Envelope{}, q.FetchErr
	}
	if len(q.Pending) == 0 {
		return queue.Envelope{}, taskerr.ErrNoMessages
	}
	env := q.Pending[0]
	q.Pending = q.Pending[1:]
	return env, nil
}

func (q *FakeQueue) Ack(ctx context.Context, env queue.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Acked = append(q.Acked, env)
	return nil
}

func (q *FakeQueue) Fail(ctx context.Context, env queue.Envelope, reason error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Failed = append(q.Failed, env)
	q.FailCause = append(q.FailCause, reason)
	return nil
}

// FakeRepository is an in-memory repository.Repository keyed by video id.
type FakeRepository struct {
	mu          sync.Mutex
	rows        map[string]repository.Video
	UpdateCalls []RepoUpdateCall

	UpdateErr error
}

type RepoUpdateCall struct {
	ID     string
	Update repository.Update
}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{rows: map[string]repository.Video{}}
}

func (r *FakeRepository) Seed(v repository.Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[v.ID] = v
}

func (r *FakeRepository) Row(id string) (repository.Video, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	return v, ok
}

func (r *FakeRepository) FindByID(ctx context.Context, id string) (repository.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	if !ok {
		return repository.Video{}, repository.ErrNotFound
	}
	return v, nil
}

func (r *FakeRepository) Update(ctx context.Context, id string, upd repository.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UpdateCalls = append(r.UpdateCalls, RepoUpdateCall{ID: id, Update: upd})
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	v, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Status = upd.Status
	v.ProcessedID = upd.ProcessedID
	v.ProcessedURL = upd.ProcessedURL
	v.ProcessedAt = upd.ProcessedAt
	r.rows[id] = v
	return nil
}

// FakeTranscoder is an in-memory transcode.Engine that echoes the input
// bytes back as the "transcoded" artifact, optionally failing on command.
type FakeTranscoder struct {
	Err error
}

func (t *FakeTranscoder) Transform(ctx context.Context, taskID string, input io.Reader, opts transcode.Options) (*transcode.Artifact, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	data, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	return transcode.NewTestArtifact(data), nil
}
