package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onnwee/vidwrk/internal/config"
)

func newTestWebDAVBackend(t *testing.T, handler http.HandlerFunc) (*WebDAVBackend, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	backend := NewWebDAVBackend(config.WebDAVConfig{
		BaseURL:  srv.URL,
		RootPath: "videos",
		Username: "user",
		Password: "pass",
	})
	return backend, srv.Close
}

func TestWebDAVUploadDownloadRoundTrip(t *testing.T) {
	store := map[string][]byte{}

	backend, closeFn := newTestWebDAVBackend(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			store[r.URL.Path] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			body, ok := store[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(body)
		}
	})
	defer closeFn()

	err := backend.Upload(context.Background(), "abc.mp4", bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	rc, err := backend.Download(context.Background(), "abc.mp4")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestWebDAVDownloadNotFound(t *testing.T) {
	backend, closeFn := newTestWebDAVBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeFn()

	_, err := backend.Download(context.Background(), "missing.mp4")
	require.ErrorIs(t, err, ErrNotFound)
}
