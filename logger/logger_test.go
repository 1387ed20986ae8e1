package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	testCases := []struct {
		level     string
		debugSeen bool
		warnSeen  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"", false, true},
		{"nonsense", false, true},
		{"error", false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tc.level, Out: &buf})
			log.Debug().Msg("d")
			assert.Equal(t, tc.debugSeen, bytes.Contains(buf.Bytes(), []byte(`"d"`)))
			buf.Reset()
			log.Warn().Msg("w")
			assert.Equal(t, tc.warnSeen, buf.Len() > 0)
		})
	}
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Out: &buf})
	l.Info().Str("position", "p1").Msg("committed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "committed", line["message"])
	assert.Equal(t, "p1", line["position"])
	assert.Contains(t, line, "time")
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Pretty: true, Out: &buf})
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestSetGlobalLogger(t *testing.T) {
	old := log.Logger
	t.Cleanup(func() { log.Logger = old })

	var buf bytes.Buffer
	SetGlobalLogger(New(Config{Level: "debug", Out: &buf}))
	log.Debug().Str("command", "hld-x").Msg("no extension in PATH")
	assert.Contains(t, buf.String(), `"command":"hld-x"`)
}
