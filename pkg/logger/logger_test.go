package logger

import (
	"bytes"
	"errors"
	"github.com/stretchr/testify/assert"
	"log/slog"
	"testing"
)

func TestSlogLogger_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "trace", want: "trace"},
		{in: "debug", want: "debug"},
		{in: "warn", want: "warn"},
		{in: "error", want: "error"},
		{in: "bogus", want: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			l := NewNop()
			l.SetLogLevel(tt.in)
			assert.Equal(t, tt.want, l.GetLogLevel())
		})
	}
}

func TestTaggedLogger_AddsAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := With(New(Options{Stdout: &buf}), slog.String("channel", "xqc"))
	l := With(base, slog.String("session", "s1"))

	l.Info("Session live", slog.Int("chatroom_id", 2))
	l.Error("Send failed", errors.New("boom"))
	l.Debug("hidden at info level")

	out := buf.String()
	assert.Contains(t, out, "channel=xqc session=s1 chatroom_id=2")
	assert.Contains(t, out, "error=boom")
	assert.NotContains(t, out, "hidden at info level")
	assert.NotContains(t, out, "[xqc]")
}
