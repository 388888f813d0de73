package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:2028", cfg.APIBaseURL)
	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, int64(10<<20), cfg.MaxImageBytes)
	assert.Equal(t, int64(50<<20), cfg.MaxVideoBytes)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.Equal(t, time.Second, cfg.UploadPause)
	assert.Equal(t, 2*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, BackendHTTP, cfg.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileMergesTOMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
api_url = "https://files.example.com/"
backend = "s3"

[queue]
capacity = 4
rate_limit = 3
upload_pause = "250ms"

[s3]
endpoint = "localhost:9000"
bucket = "media"
use_ssl = true

[journal]
redis_addr = "localhost:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SNAPDROP_RATE_LIMIT", "7")
	t.Setenv("SNAPDROP_S3_BUCKET", "override")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://files.example.com", cfg.APIBaseURL)
	assert.Equal(t, 4, cfg.QueueCapacity)
	assert.Equal(t, 7, cfg.RateLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.UploadPause)
	assert.Equal(t, BackendS3, cfg.Backend)
	assert.Equal(t, "override", cfg.S3Bucket)
	assert.True(t, cfg.S3UseSSL)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateJournal())
}

func TestLoadFileMissingIsIgnored(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.QueueCapacity)
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[queue]\nreset_delay = \"soon\"\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.reset_delay")
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("SNAPDROP_QUEUE_CAPACITY", "lots")
	t.Setenv("SNAPDROP_MAX_VIDEO_BYTES", "-5")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, int64(50<<20), cfg.MaxVideoBytes)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend = "ftp"
	assert.Error(t, cfg.Validate())

	cfg.Backend = BackendS3
	cfg.S3Endpoint = ""
	assert.Error(t, cfg.Validate())

	assert.Error(t, cfg.ValidateJournal())
}
