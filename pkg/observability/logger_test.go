package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len(), "debug must not be written at info level")

	logger.Info("visible")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "visible", entry["msg"])
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("tenant_id", "T1").
		WithFields(map[string]interface{}{"command": "rotate_secret"}).
		WithError(errors.New("boom")).
		Warnf("command %s failed", "rotate_secret")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "T1", entry["tenant_id"])
	assert.Equal(t, "rotate_secret", entry["command"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "command rotate_secret failed", entry["msg"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithActor(ctx, "alice")

	FromContext(ctx).Info("handled")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "alice", entry["actor"])
	assert.NotContains(t, entry, "trace_id")
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetActor(ctx))
	assert.NotNil(t, GetLogger(ctx))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
		"":        InfoLevel,
	}
	for input, expected := range tests {
		assert.Equal(t, expected, ParseLogLevel(input), input)
	}
}

func TestNewComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewComponentLogger(WarnLevel, &buf)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.WithField("component", "dispatcher").Warn("slow append")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "dispatcher", entry["component"])
	assert.Equal(t, "warning", entry["level"])
}

func TestRecoverPanicWithCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)
	called := false

	func() {
		defer RecoverPanicWithCallback(logger, "test", func() { called = true })
		panic("kaboom")
	}()

	assert.True(t, called)
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "kaboom", entry["panic"])
	assert.Equal(t, "test", entry["context"])
}
