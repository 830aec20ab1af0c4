package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	rawslog "log/slog"

	"github.com/stretchr/testify/require"
)

type testLogJSON struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Component string `json:"component"`
	Resource  string `json:"resource"`
}

func TestSlogLogger(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{})

	handler := rawslog.NewJSONHandler(buffer, &rawslog.HandlerOptions{Level: rawslog.LevelDebug})
	log := New(handler).With("component", "live")

	cases := []struct {
		fn    func(msg string, args ...any)
		level rawslog.Level
	}{
		{fn: log.Error, level: rawslog.LevelError},
		{fn: log.Warn, level: rawslog.LevelWarn},
		{fn: log.Info, level: rawslog.LevelInfo},
		{fn: log.Debug, level: rawslog.LevelDebug},
	}

	for _, tc := range cases {
		t.Run(tc.level.String(), func(t *testing.T) {
			buffer.Reset()
			tc.fn("subscription restored", "resource", "/topic/box")

			var got testLogJSON
			require.NoError(t, json.Unmarshal(buffer.Bytes(), &got))
			require.Equal(t, tc.level.String(), got.Level)
			require.Equal(t, "subscription restored", got.Msg)
			require.Equal(t, "live", got.Component)
			require.Equal(t, "/topic/box", got.Resource)
		})
	}
}
