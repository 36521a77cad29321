package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Level:       "info",
		Format:      LogFormatJSON,
		Output:      &buf,
		ServiceName: "medassign",
	})

	logger.Info("hello", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "hello", entry["msg"])
	require.Equal(t, "value", entry["key"])
	require.Equal(t, "medassign", entry["service"])
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Level:  "warn",
		Format: LogFormatText,
		Output: &buf,
	})

	logger.Info("suppressed")
	require.Empty(t, buf.String())

	logger.Warn("visible")
	require.Contains(t, buf.String(), "visible")
}
