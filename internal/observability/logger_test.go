// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/gqlharvest/internal/config"
)

// The logger is a global singleton, so every test has to reset it before
// initializing its own instance.

func TestInitialize_ConsoleFormatWithColors(t *testing.T) {
	ResetForTest()
	var buf bytes.Buffer

	cfg := config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "testservice",
		Colors:      config.ColorConfig{Info: "green"},
	}
	Initialize(cfg, zapcore.AddSync(&buf))

	GetLogger().Info("This is a test message.")

	output := buf.String()
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "This is a test message.")
	assert.Contains(t, output, "testservice.")
	assert.Contains(t, output, colorGreen)
	assert.Contains(t, output, colorReset)
}

func TestInitialize_JSONFormat(t *testing.T) {
	ResetForTest()
	var buf bytes.Buffer

	cfg := config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "testservice",
	}
	Initialize(cfg, zapcore.AddSync(&buf))

	GetLogger().Info("structured entry")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "structured entry", entry["msg"])
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	var buf bytes.Buffer

	cfg := config.LoggerConfig{
		Level:       "not-a-level",
		Format:      "json",
		ServiceName: "testservice",
	}
	Initialize(cfg, zapcore.AddSync(&buf))

	GetLogger().Debug("should be filtered")
	assert.Empty(t, buf.String())

	GetLogger().Info("should pass")
	assert.Contains(t, buf.String(), "should pass")
}

func TestInitialize_OnlyRunsOnce(t *testing.T) {
	ResetForTest()
	var first, second bytes.Buffer

	cfg := config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"}
	Initialize(cfg, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"}, zapcore.AddSync(&second))

	GetLogger().Info("routed to the first writer")

	assert.Contains(t, first.String(), "routed to the first writer")
	assert.Empty(t, second.String())
}
