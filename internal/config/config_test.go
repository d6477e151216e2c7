package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("LIVEKIT_API_KEY", "devkey")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "devkey", cfg.LiveKit.APIKey)
	assert.Empty(t, cfg.LiveKit.APISecret)
	assert.Equal(t, DefaultLiveKitURL, cfg.LiveKit.WSURL)
	assert.Equal(t, 6*time.Hour, cfg.LiveKit.TokenTTL)
	assert.Equal(t, 3*time.Second, cfg.Client.ReconcileInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.SettleDelay)
	assert.False(t, cfg.Client.AutoFocus)
	assert.Equal(t, 20, cfg.RateLimit.Requests)
}

func TestLoadPrefixedEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("ROOMVIEW_CLIENT_AUTO_FOCUS", "true")
	t.Setenv("ROOMVIEW_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Client.AutoFocus)
	assert.Equal(t, 9090, cfg.Port)
}

func TestNameFileRoundTrip(t *testing.T) {
	n := NewNameFile(filepath.Join(t.TempDir(), "nested", "client.yaml"))
	assert.Empty(t, n.LastName())

	require.NoError(t, n.SaveName("alice"))
	assert.Equal(t, "alice", n.LastName())

	require.NoError(t, n.SaveName("bob"))
	assert.Equal(t, "bob", NewNameFile(n.Path()).LastName())
}
