package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestCursorCommand(t *testing.T) {
	dir := t.TempDir()
	cursorPath := filepath.Join(dir, "timestamp.txt")
	cfgFile := filepath.Join(dir, "config.yml")
	cfg := "source:\n  subgraph:\n    url: http://127.0.0.1:1/graphql\nsink:\n  type: stdout\ncursor:\n  backend: file\n  path: " + cursorPath + "\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o600))

	out, err := execute(t, "cursor", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, "no cursor stored")

	require.NoError(t, os.WriteFile(cursorPath, []byte("1650000000"), 0o600))
	out, err = execute(t, "cursor", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, "1650000000")
}

func TestBadConfigFails(t *testing.T) {
	_, err := execute(t, "cursor", "--config", filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestIntervalFlagIsValidated(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yml")
	cfg := "source:\n  subgraph:\n    url: http://127.0.0.1:1/graphql\nsink:\n  type: stdout\ncursor:\n  backend: file\n  path: " + filepath.Join(dir, "timestamp.txt") + "\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o600))

	out, err := execute(t, "--config", cfgFile, "--interval", "1ms", "--once")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.interval must be at least 1s")
	assert.Contains(t, out, "invalid flags")
}
