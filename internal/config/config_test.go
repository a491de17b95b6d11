package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("IMAGEGEN_CONFIG", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash-image", c.Gemini.ImageModel)
	assert.Equal(t, "gemini-2.5-flash", c.Gemini.TextModel)
	assert.Equal(t, 30*time.Second, c.Orchestrator.StageTimeout)
	assert.Equal(t, 120*time.Second, c.Processor.Timeout)
	assert.Equal(t, 45*time.Second, c.Processor.TargetProcessingTime)
	assert.True(t, c.Processor.EnableOptimization)
	assert.Equal(t, time.Hour, c.Processor.SessionRetention)
	assert.Equal(t, 3, c.Coordinator.MaxConcurrentImages)
	assert.True(t, c.Coordinator.EnableParallel)
	assert.Empty(t, c.AWS.SessionsTable)
	assert.False(t, c.Metrics.Enabled)
	assert.Equal(t, "ImageOrchestrator", c.Metrics.Namespace)

	assert.Equal(t, c, Default())
}

func TestLoad_FileAndEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[processor]
timeout = "90s"
enable_optimization = false

[coordinator]
max_concurrent_images = 5

[aws]
images_bucket = "renders"
`), 0o600))
	t.Setenv("IMAGEGEN_CONFIG", path)
	t.Setenv("IMAGEGEN_COORDINATOR_MAX_CONCURRENT_IMAGES", "2")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.Processor.Timeout)
	assert.False(t, c.Processor.EnableOptimization)
	assert.Equal(t, 2, c.Coordinator.MaxConcurrentImages, "env wins over file")
	assert.Equal(t, "renders", c.AWS.ImagesBucket)
	assert.Equal(t, 30*time.Second, c.Orchestrator.StageTimeout)
}

func TestLoad_InvalidFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("IMAGEGEN_PROCESSOR_TIMEOUT", "0s")

	_, err := Load()
	assert.ErrorContains(t, err, "processor.timeout must be positive")
}

func TestValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	c.Coordinator.MaxConcurrentImages = 0
	c.Orchestrator.StageTimeout = -time.Second
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coordinator.max_concurrent_images")
	assert.Contains(t, err.Error(), "orchestrator.stage_timeout")

	c = Default()
	c.Metrics.Enabled = true
	c.Metrics.Namespace = ""
	assert.ErrorContains(t, c.Validate(), "metrics.namespace")
}
