package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealmLogger_ImplementsLogger(t *testing.T) {
	var _ Logger = (*RealmLogger)(nil)
	var _ Logger = NoOpLogger{}
	var _ Logger = (*SlogAdapter)(nil)
}

func newBufferedLogger(level LogLevel) (*RealmLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&Config{Level: level, Format: "json", Output: &buf}), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	return rec
}

func TestRealmLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	logger.Info("shown", "k", "v")
	rec := decodeLine(t, buf)
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestRealmLogger_WithComponentAndInstance(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)
	logger.WithComponent("engine").WithInstance("inst-1").Info("spinning up")
	rec := decodeLine(t, buf)
	assert.Equal(t, "engine", rec["component"])
	assert.Equal(t, "inst-1", rec["instance_id"])
}

func TestRealmLogger_LogDispatchOutcomes(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelDebug)

	logger.LogDispatch("npc_admin", "npc_reaction", 10*time.Millisecond, false, true)
	rec := decodeLine(t, buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "dispatch timed out", rec["msg"])
	assert.Equal(t, "npc_reaction", rec["action"])

	buf.Reset()
	logger.LogDispatch("npc_admin", "npc_reaction", 10*time.Millisecond, true, false)
	rec = decodeLine(t, buf)
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "dispatch completed", rec["msg"])
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
