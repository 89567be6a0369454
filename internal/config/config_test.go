package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRejectsMissingDatabaseDSN(t *testing.T) {
	_, err := Load([]string{
		"-queue-backend", "stream",
		"-stream-broker-address", "localhost:9092",
		"-storage-backend", "s3",
		"-s3-bucket", "videos",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "database-dsn")
}

func TestLoadRejectsIncompleteWebDAVConfig(t *testing.T) {
	_, err := Load([]string{
		"-database-dsn", "postgres://localhost/vidwrk",
		"-queue-backend", "stream",
		"-stream-broker-address", "localhost:9092",
		"-storage-backend", "webdav",
		"-webdav-base-url", "https://dav.example.com",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "webdav")
}

func TestLoadRejectsUnknownQueueBackend(t *testing.T) {
	_, err := Load([]string{
		"-database-dsn", "postgres://localhost/vidwrk",
		"-queue-backend", "smoke-signal",
		"-storage-backend", "s3",
		"-s3-bucket", "videos",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue-backend")
}

func TestLoadCoercesNonPositiveWorkerPoolSizeToOne(t *testing.T) {
	cfg, err := Load([]string{
		"-database-dsn", "postgres://localhost/vidwrk",
		"-queue-backend", "stream",
		"-stream-broker-address", "localhost:9092",
		"-storage-backend", "s3",
		"-s3-bucket", "videos",
		"-worker-pool-size", "0",
	})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.WorkerPoolSize)
}

func TestLoadAcceptsFullyConfiguredVisibilityTimeoutAndS3(t *testing.T) {
	cfg, err := Load([]string{
		"-database-dsn", "postgres://localhost/vidwrk",
		"-queue-backend", "visibility-timeout",
		"-vt-queue-url", "https://sqs.us-east-1.amazonaws.com/1234/videos",
		"-storage-backend", "s3",
		"-s3-bucket", "videos",
	})
	require.NoError(t, err)
	require.Equal(t, QueueBackendVisibilityTimeout, cfg.QueueBackend)
	require.Equal(t, StorageBackendS3, cfg.StorageBackend)
	require.Equal(t, 720, cfg.TargetWidth)
	require.Equal(t, 1280, cfg.TargetHeight)
}
