package config

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_WritesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")

	m, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, "info", m.Get().App.LogLevel)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"heartbeat_interval": "1m0s"`)

	// a second load reads the file back
	m2, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, m.Get(), m2.Get())
}

func TestNew_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"channels": ["XQC", " adinross "],
		"session": {"heartbeat_timeout": "10s", "backoff_base": 2000000000}
	}`), 0o600))

	m, err := New(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, []string{"xqc", "adinross"}, cfg.Channels)
	assert.Equal(t, 10*time.Second, cfg.Session.HeartbeatTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.Session.BackoffBase.Std())
	assert.Equal(t, 60*time.Second, cfg.Session.HeartbeatInterval.Std())
	assert.Equal(t, 1024, cfg.Bus.Depth)
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: `{`},
		{name: "bad level", body: `{"app":{"log_level":"loud"}}`},
		{name: "bad duration", body: `{"session":{"heartbeat_interval":"soon"}}`},
		{name: "jitter", body: `{"session":{"backoff_jitter":2}}`},
		{name: "bus depth", body: `{"bus":{"depth":0}}`},
		{name: "limiter half set", body: `{"limiter":{"requests":5,"per":0}}`},
		{name: "duplicate channel", body: `{"channels":["a","A"]}`},
		{name: "relative url", body: `{"kick":{"api_base":"api.kick.com"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := New(path)
			assert.Error(t, err)
		})
	}
}

func TestManager_Update(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	m, err := New(path)
	require.NoError(t, err)

	var seen []string
	m.OnChange(func(cfg Config) { seen = append(seen, cfg.App.LogLevel) })

	require.NoError(t, m.Update(func(cfg *Config) { cfg.App.LogLevel = "debug" }))
	assert.Equal(t, "debug", m.Get().App.LogLevel)

	err = m.Update(func(cfg *Config) { cfg.App.LogLevel = "loud" })
	assert.Error(t, err)
	assert.Equal(t, "debug", m.Get().App.LogLevel)
	assert.Equal(t, []string{"debug"}, seen)

	var onDisk Config
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "debug", onDisk.App.LogLevel)
}

func TestManager_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	m, err := New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.Channels = append(cfg.Channels, "mutated")
	cfg.App.LogLevel = "error"

	assert.Empty(t, m.Get().Channels)
	assert.Equal(t, "info", m.Get().App.LogLevel)
}
