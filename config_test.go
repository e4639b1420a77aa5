package beatcore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_SaveThenLoadRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tactus.MinScore = 0.42
	cfg.Capture.DCBias = 1234

	path := filepath.Join(t.TempDir(), "beatcore.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Tactus.MinScore, loaded.Tactus.MinScore)
	assert.Equal(t, cfg.Capture.DCBias, loaded.Capture.DCBias)
}

func TestWatchConfig_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beatcore.yaml")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Save(path))

	reloaded := make(chan *Config, 1)
	watcher, err := WatchConfig(path, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	defer watcher.Close()

	cfg.Tactus.MinScore = 0.9
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-reloaded:
		assert.InDelta(t, float32(0.9), got.Tactus.MinScore, 1e-6)
	case <-time.After(2 * time.Second):
		t.Fatal("config watcher did not fire within the test timeout")
	}
}
