package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"exam_platform_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configBody(level, uploads string) []byte {
	return []byte("log:\n  level: " + level + "\nstorage:\n  type: local\n  local_path: " + uploads + "\n")
}

func TestWatchConfigReloadsAfterWrite(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, configBody("info", uploads), 0o644))

	var (
		mu     sync.Mutex
		levels []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, dir, func(cfg *config.Config) {
			mu.Lock()
			levels = append(levels, cfg.Log.Level)
			mu.Unlock()
		})
	}()

	// give the watcher time to register the directory
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, configBody("debug", uploads), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) == 1 && levels[0] == "debug"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchConfigMissingDir(t *testing.T) {
	err := WatchConfig(context.Background(), filepath.Join(t.TempDir(), "missing"), func(*config.Config) {})
	assert.Error(t, err)
}
