package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_AppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
jwt:
  secret: base
upload:
  max_files: 10
storage:
  bucket: evidence
`), 0o600))
	t.Setenv("UPLOAD_MAX_FILES", "20")
	t.Setenv("S3_BUCKET", "")

	cfg, err := LoadFrom("local", dir)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 20, cfg.Upload.MaxFiles)
	assert.Equal(t, int64(25<<20), cfg.Upload.MaxFileSize)
	assert.Equal(t, "evidence", cfg.Storage.Bucket)
	assert.Equal(t, 10*time.Minute, cfg.Storage.UploadTTL)
	assert.Equal(t, 5, cfg.Auth.MaxFailedLogins)
	assert.Equal(t, "audit.recorded.q", cfg.Worker.Queue)
	assert.Equal(t, ":8080", cfg.Server.Port)
}

func TestLoadFrom_RequiresSecret(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("db:\n  host: localhost\n"), 0o600))
	t.Setenv("JWT_SECRET", "")

	_, err := LoadFrom("local", dir)
	require.Error(t, err)
}
