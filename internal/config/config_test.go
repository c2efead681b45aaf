package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REMOTE_BASE_URL", "")
	t.Setenv("QUEUE_BACKEND", "")
	t.Setenv("SYNC_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.Remote.BaseURL)
	assert.Equal(t, 3, cfg.Remote.ReadAttempts)
	assert.Equal(t, 12*time.Second, cfg.Sync.Interval)
	assert.Equal(t, QueueBackendSQLite, cfg.Queue.Backend)
	assert.Equal(t, PolicyDeadLetter, cfg.Sync.PermanentFailurePolicy)
	assert.Equal(t, "127.0.0.1:8787", cfg.App.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REMOTE_BASE_URL", "https://tickets.example.com/")
	t.Setenv("REMOTE_READ_TIMEOUT", "1500ms")
	t.Setenv("SYNC_INTERVAL", "30")
	t.Setenv("QUEUE_BACKEND", "REDIS")
	t.Setenv("SYNC_PERMANENT_FAILURE_POLICY", "block")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://tickets.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Remote.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, QueueBackendRedis, cfg.Queue.Backend)
	assert.Equal(t, PolicyBlock, cfg.Sync.PermanentFailurePolicy)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "etcd")

	_, err := Load()
	assert.ErrorContains(t, err, "QUEUE_BACKEND")
}

func TestGetEnvAsDuration_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("SOME_DURATION", time.Second))
}
