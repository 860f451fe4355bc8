package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TWITTER_CLIENT_ID", "TWITTER_CLIENT_SECRET", "JUICEBOX_SUBGRAPH", "ETH_RPC_URL", "REDIS_URL"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
source:
  subgraph:
    url: https://graph.example/juicebox
auth:
  client_id: abc
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "subgraph", c.Source.Type)
	assert.Equal(t, 3*time.Minute, c.Pipeline.Interval)
	assert.Equal(t, "observe", c.Pipeline.AdvancePolicy)
	assert.Equal(t, "twitter", c.Sink.Type)
	assert.Equal(t, "file", c.Cursor.Backend)
	assert.Equal(t, "https://ipfs.io/ipfs", c.Metadata.Gateway)
	assert.Equal(t, "https://juicebox.money", c.Render.BaseURL)
	assert.Equal(t, []string{"tweet.write", "tweet.read", "users.read"}, c.Auth.Scopes)
	assert.Equal(t, 3, c.Source.Subgraph.Retry.MaxRetries)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITTER_CLIENT_ID", "from-env")
	t.Setenv("JUICEBOX_SUBGRAPH", "https://graph.example/env")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	path := writeConfig(t, `
cursor:
  backend: redis
auth:
  client_id: from-file
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Auth.ClientID)
	assert.Equal(t, "https://graph.example/env", c.Source.Subgraph.URL)
	assert.Equal(t, "redis://localhost:6379/0", c.Cursor.Redis)
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing subgraph url", "auth: {client_id: x}\n", "source.subgraph.url is required"},
		{"unknown sink", "source: {subgraph: {url: u}}\nsink: {type: carrier-pigeon}\n", "unknown sink type"},
		{"unknown policy", "source: {subgraph: {url: u}}\nauth: {client_id: x}\npipeline: {advance_policy: sometimes}\n", "unknown advance policy"},
		{"rpc needs contract", "source: {type: rpc, rpc: {url: u}}\nauth: {client_id: x}\n", "contract and source.rpc.topic"},
		{"twitter needs client id", "source: {subgraph: {url: u}}\n", "auth.client_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
