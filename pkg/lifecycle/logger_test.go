package lifecycle

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/lens-sync/pkg/logger"
)

func TestInitializeLogger(t *testing.T) {
	require.NoError(t, InitializeLogger(&logger.Config{Level: "error"}))
	assert.Equal(t, zerolog.ErrorLevel, log.Logger.GetLevel())

	require.NoError(t, InitializeLogger(nil))

	err := InitializeLogger(&logger.Config{Level: "loud"})
	require.Error(t, err)
}

func TestComponentTagsChildLogger(t *testing.T) {
	var buf bytes.Buffer

	parent := &LoggerImpl{logger: zerolog.New(&buf)}

	Component(parent, "poller").Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"poller"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}
