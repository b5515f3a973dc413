package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv provides the fields Validate insists on.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MYSQL_DSN", "user:pass@tcp(127.0.0.1:3306)/docketwatch")
	t.Setenv("REGISTRY_API_KEY", "test-key")
	t.Setenv("REGISTRY_REQUESTS_URL", "https://requests.registry.example")
	t.Setenv("REGISTRY_TRACKING_URL", "https://tracking.registry.example")
}

func TestNewBootstrap_Defaults(t *testing.T) {
	setRequiredEnv(t)

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout.AsDuration())

	assert.Equal(t, "mysql", bc.Data.Database.Driver)
	assert.Equal(t, "user:pass@tcp(127.0.0.1:3306)/docketwatch", bc.Data.Database.Source)
	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)

	assert.Equal(t, int32(180), bc.Registry.RateLimitRpm)
	assert.Equal(t, int32(5), bc.Registry.MaxRetries)
	assert.Equal(t, int64(10<<20), bc.Registry.MaxAttachmentBytes)
	assert.Equal(t, 10.0, bc.Registry.Breaker.Threshold)
	assert.Equal(t, 5*time.Minute, bc.Registry.Breaker.Window.AsDuration())
	assert.Equal(t, 10*time.Minute, bc.Registry.Breaker.Cooldown.AsDuration())
	assert.Equal(t, int32(10), bc.Registry.Breaker.MinRequests)
	assert.Equal(t, 3*time.Second, bc.Registry.Poll.Interval.AsDuration())
	assert.Equal(t, 5*time.Minute, bc.Registry.Poll.Timeout.AsDuration())
	assert.Equal(t, int32(100), bc.Registry.Poll.MaxAttempts)

	assert.Equal(t, int32(50), bc.Monitor.BatchSize)
	assert.Equal(t, int32(5), bc.Monitor.Concurrency)
	assert.Equal(t, 2*time.Second, bc.Monitor.InterBatchDelay.AsDuration())
	assert.Equal(t, 24*time.Hour, bc.Monitor.Lookback.AsDuration())
	assert.Equal(t, int32(2), bc.Monitor.CaseAttempts)
	assert.Equal(t, []string{"judgment", "sentence", "ruling", "hearing"}, bc.Monitor.TriggerKeywords)
	assert.Equal(t, "0 0 6 * * *", bc.Monitor.Cron)

	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DOCKETWATCH_MONITOR_BATCH_SIZE", "25")
	t.Setenv("DOCKETWATCH_REGISTRY_RATE_LIMIT_RPM", "60")
	t.Setenv("DOCKETWATCH_LOG_LEVEL", "debug")

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, int32(25), bc.Monitor.BatchSize)
	assert.Equal(t, int32(60), bc.Registry.RateLimitRpm)
	assert.Equal(t, "debug", bc.Log.Level)
}

func TestNewBootstrap_ConfigFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  http:
    addr: ":9090"
monitor:
  batch_size: 10
  trigger_keywords:
    - acordao
    - sentenca
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", bc.Server.Http.Addr)
	assert.Equal(t, int32(10), bc.Monitor.BatchSize)
	assert.Equal(t, []string{"acordao", "sentenca"}, bc.Monitor.TriggerKeywords)
	// Untouched keys keep their defaults
	assert.Equal(t, int32(5), bc.Monitor.Concurrency)
}

func TestNewBootstrap_MissingConfigFile(t *testing.T) {
	setRequiredEnv(t)

	_, err := NewBootstrap("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewBootstrap_MissingRequiredFields(t *testing.T) {
	// Only the DSN is provided
	t.Setenv("MYSQL_DSN", "user:pass@tcp(127.0.0.1:3306)/docketwatch")
	t.Setenv("REGISTRY_API_KEY", "")
	t.Setenv("REGISTRY_REQUESTS_URL", "")
	t.Setenv("REGISTRY_TRACKING_URL", "")

	_, err := NewBootstrap("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.requests_url")
	assert.Contains(t, err.Error(), "registry.tracking_url")
	assert.Contains(t, err.Error(), "registry.api_key")
	assert.NotContains(t, err.Error(), "data.database.source")
}

func TestValidate_AllMissing(t *testing.T) {
	err := Validate(&Bootstrap{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.database.source")
	assert.Contains(t, err.Error(), "registry.api_key")
}
