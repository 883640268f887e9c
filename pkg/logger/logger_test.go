package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownEnv(t *testing.T) {
	_, err := New(Config{Env: "staging"})
	require.Error(t, err)
}

func TestProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Env: "prod", Output: &buf})
	require.NoError(t, err)

	log.Info("room created", "room_key", "AB12-CD34-EF56")

	assert.Contains(t, buf.String(), `"room_key":"AB12-CD34-EF56"`)
	assert.Contains(t, buf.String(), `"msg":"room created"`)
}

func TestTestEnvOnlyLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Env: "test", Output: &buf})
	require.NoError(t, err)

	log.Info("hidden")
	log.Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("dev", ""))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("prod", ""))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("dev", "WARN"))
}

func TestShortenPath(t *testing.T) {
	assert.Equal(t, "session/coordinator.go", shortenPath("/root/echonet/internal/session/coordinator.go", 2))
	assert.Equal(t, "a/b", shortenPath("a/b", 3))
	assert.Equal(t, "/x/y/z", shortenPath("/x/y/z", 0))
}
