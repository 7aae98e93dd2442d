package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", "json")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("store_id", 7).Info("recomputed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "recomputed", line["msg"])
	assert.EqualValues(t, 7, line["store_id"])
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	l := NewWithWriter(&bytes.Buffer{}, "chatty", "text")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
