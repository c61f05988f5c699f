package logging_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/rftgrader/internal/logging"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "warn")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("hidden")
	logger.Warn().Str("endpoint", "validate").Msg("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "endpoint=validate")
}

func TestNewDefaultLevel(t *testing.T) {
	logger, err := logging.New(&bytes.Buffer{}, "")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := logging.New(&bytes.Buffer{}, "loud")
	assert.Error(t, err)
}
