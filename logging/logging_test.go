package logging

import (
	"os"
	"path/filepath"
	"testing"

	"receipt-tracker/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestInitLoggerWritesFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logPath := filepath.Join(t.TempDir(), "nested", "tracker.log")
	err := InitLogger(config.LoggerConfig{
		Level: "info",
		File: config.LoggerFileConfig{
			Enable:  true,
			Path:    logPath,
			MaxSize: 1,
		},
	}, true)
	require.NoError(t, err)

	log.Info().Str("probe", "value").Msg("hello")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"probe":"value"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}
