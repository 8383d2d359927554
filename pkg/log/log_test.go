package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cuemby/corral/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	require.Error(t, Init(Options{Level: "chatty"}))
}

func TestJobLoggerCarriesKeyFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", JSON: true, Writer: &buf}))

	logger := Job(types.JobKey{Role: "r", Environment: "prod", Name: "j"})
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "r", line["role"])
	require.Equal(t, "prod", line["environment"])
	require.Equal(t, "j", line["job"])
}

func TestUpdateLoggerAddsToken(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", JSON: true, Writer: &buf}))

	logger := Update(types.JobKey{Role: "r", Name: "j"}, "tok-1")
	logger.Info().Msg("registered")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "tok-1", line["update_token"])
	_, hasEnv := line["environment"]
	require.False(t, hasEnv, "empty environment is omitted")
}
