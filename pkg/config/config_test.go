package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	require.True(t, cfg.EnableJobCreation)
	require.Equal(t, time.Second, cfg.KillTaskInitialBackoff.Duration())
	require.Equal(t, 30*time.Second, cfg.KillTaskMaxBackoff.Duration())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corral.yaml")
	content := []byte("enable_job_creation: false\nkill_task_initial_backoff: 2s\ndata_dir: /var/lib/corral\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.EnableJobCreation)
	require.Equal(t, 2*time.Second, cfg.KillTaskInitialBackoff.Duration())
	require.Equal(t, "/var/lib/corral", cfg.DataDir)
	require.Equal(t, 30*time.Second, cfg.KillTaskMaxBackoff.Duration(), "unset fields keep their default")
}
