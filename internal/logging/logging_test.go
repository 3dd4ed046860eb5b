package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesFileAndJSON(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "host.log")

	require.NoError(t, logging.Setup(logging.Options{Level: "debug", File: file, JSON: &buf}))
	t.Cleanup(logging.Close)
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Info().Str("component", "test").Msg("hello")
	require.Contains(t, buf.String(), `"component":"test"`)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"hello"`)

	// later calls are ignored
	require.NoError(t, logging.Setup(logging.Options{Level: "not-a-level"}))
}
