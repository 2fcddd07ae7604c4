package logging_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"quoteengine/internal/logging"
)

func TestNew(t *testing.T) {
	t.Parallel()

	log, err := logging.New(logging.Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = logging.New(logging.Config{})
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	_, err := logging.New(logging.Config{Level: "loud"})
	require.Error(t, err)
	_, err = logging.New(logging.Config{Format: "xml"})
	require.Error(t, err)
}
