package client_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/audiopaper-api/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	state := filepath.Join(t.TempDir(), "state.db")
	path := writeConfig(t, `
server_url = "https://audiopaper.example/api/"
poll_interval = "500ms"
state_file = "`+filepath.ToSlash(state)+`"
`)

	cfg, err := client.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://audiopaper.example/api", cfg.ServerURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll)
	assert.Equal(t, client.DefaultRequestTimeout, cfg.Timeout)
	assert.Equal(t, filepath.Clean(state), cfg.StateFile)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"bad toml", `server_url = `},
		{"bad duration", `poll_interval = "soon"`},
		{"negative duration", `request_timeout = "-1s"`},
		{"relative server url", `server_url = "localhost"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := client.LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	t.Run("explicit path must exist", func(t *testing.T) {
		t.Parallel()
		_, err := client.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		assert.Error(t, err)
	})
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := client.DefaultConfig()
	assert.Equal(t, client.DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, "2s", cfg.PollInterval)
}

func TestExpandPath(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := client.ExpandPath("~/x/y.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y.db"), got)

	got, err = client.ExpandPath("/tmp/../tmp/z.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/z.db", got)
}
