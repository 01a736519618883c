package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger, err := NewWithWriter(&bytes.Buffer{}, level, FormatText)
			require.NoError(t, err)
			want, _ := logrus.ParseLevel(level)
			assert.Equal(t, want, logger.GetLevel())
		})
	}
}

func TestNewInvalid(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "loud", FormatText)
	assert.Error(t, err)

	_, err = NewWithWriter(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "info", FormatJSON)
	require.NoError(t, err)

	logger.WithField("session", "abc").Info("authenticated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "authenticated", entry["msg"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "info", entry["level"])
}

func TestTextFormatNoColorsOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", "")
	require.NoError(t, err)

	logger.Debug("state change")
	assert.Contains(t, buf.String(), `msg="state change"`)
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
}
