package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	ConfigureTo(&buf, "production", "warn")

	log.Info().Msg("hidden")
	log.Warn().Str("job_id", "task-1").Msg("job_poll_timeout")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "job_poll_timeout", entry["message"])
	assert.Equal(t, "task-1", entry["job_id"])
	assert.Equal(t, "warn", entry["level"])
}

func TestConfigureDevelopmentDefaultsToDebug(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	logger := ConfigureTo(&buf, "development", "")
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	log.Debug().Msg("runway_task_polled")
	assert.Contains(t, buf.String(), "runway_task_polled")
}
