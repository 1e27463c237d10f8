package utils

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		cfg  LogConfig
		want logrus.Level
	}{
		{LogConfig{Level: "debug"}, logrus.DebugLevel},
		{LogConfig{Level: "WARN"}, logrus.WarnLevel},
		{LogConfig{Level: "error"}, logrus.ErrorLevel},
		{LogConfig{}, logrus.InfoLevel},
		{LogConfig{Verbose: true}, logrus.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewLogger(tt.cfg).GetLevel(), "%+v", tt.cfg)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogConfig{Format: "json"})
	logger.WithField("rank", 3).Info("ready")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ready", entry["msg"])
	assert.Equal(t, float64(3), entry["rank"])
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	assert.NotNil(t, logger.Out)
}
