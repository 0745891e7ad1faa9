package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AllLogLevels(t *testing.T) {
	testCases := []struct {
		level         string
		expectedLevel zerolog.Level
		name          string
	}{
		{"debug", zerolog.DebugLevel, "debug"},
		{"info", zerolog.InfoLevel, "info"},
		{"warn", zerolog.WarnLevel, "warn"},
		{"error", zerolog.ErrorLevel, "error"},
		{"unknown", zerolog.InfoLevel, "unknown defaults to info"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger := New(Config{Level: tc.level})
			assert.NotNil(t, logger)
			assert.Equal(t, tc.expectedLevel, zerolog.GlobalLevel())
		})
	}
}

func TestNew_OutputContainsMessage(t *testing.T) {
	logger := New(Config{Level: "info"})

	var buf bytes.Buffer
	logger = logger.Output(&buf)
	logger.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestNew_PrettyOutput(t *testing.T) {
	logger := New(Config{Level: "info", Pretty: true})

	var buf bytes.Buffer
	logger = logger.Output(&buf)
	logger.Info().Msg("pretty message")

	assert.Contains(t, buf.String(), "pretty message")
}

func TestNew_ErrorLevelFiltersLower(t *testing.T) {
	logger := New(Config{Level: "error"})

	var buf bytes.Buffer
	logger = logger.Output(&buf)

	logger.Info().Msg("should not appear")
	assert.NotContains(t, buf.String(), "should not appear")

	logger.Error().Msg("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestConfig_EmptyLevel(t *testing.T) {
	logger := New(Config{Level: ""})
	require.NotNil(t, logger)

	// Empty level defaults to InfoLevel
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetGlobalLogger(t *testing.T) {
	logger := New(Config{Level: "info"})
	SetGlobalLogger(logger)

	var buf bytes.Buffer
	testLogger := logger.Output(&buf)
	testLogger.Info().Msg("global logger test")

	assert.Contains(t, buf.String(), "global logger test")
}
