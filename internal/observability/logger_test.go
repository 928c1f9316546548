package observability

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/config"
)

func TestSecretRedaction(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	log.Info("configuration loaded",
		slog.String("bucket", "renders"),
		slog.Any("secret_key", Secret("hunter2")),
	)

	out := buf.String()
	assert.Contains(t, out, "renders")
	assert.NotContains(t, out, "hunter2")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	log.Info("dropped")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	WithJobID(WithComponent(log, "worker"), "01J5JOB").Info("claimed")

	out := buf.String()
	assert.Contains(t, out, "component=worker")
	assert.Contains(t, out, "job_id=01J5JOB")
}

func TestContextLogger(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	ctx := ContextWithLogger(t.Context(), log)
	require.Same(t, log, LoggerFromContext(ctx))

	assert.Same(t, slog.Default(), LoggerFromContext(t.Context()))
}
