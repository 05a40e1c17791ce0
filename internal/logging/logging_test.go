package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var out bytes.Buffer
	logger, err := New(&out, "json", 4)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("height", 913139).Debug("requesting chain data")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "requesting chain data", entry["msg"])
	assert.EqualValues(t, 913139, entry["height"])
}

func TestNewVerbosityFilters(t *testing.T) {
	var out bytes.Buffer
	logger, err := New(&out, "text", 2)
	require.NoError(t, err)
	logger.Info("hidden")
	assert.Empty(t, out.String())
	logger.Warn("shown")
	assert.Contains(t, out.String(), "shown")
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", 3)
	require.Error(t, err)
	_, err = New(&bytes.Buffer{}, "text", 6)
	require.Error(t, err)
}
