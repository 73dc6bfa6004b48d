package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func record(level slog.Level, msg string, attrs ...slog.Attr) slog.Record {
	r := slog.NewRecord(time.Date(2024, 3, 1, 14, 5, 9, 123_000_000, time.UTC), level, msg, 0)
	r.AddAttrs(attrs...)
	return r
}

func render(t *testing.T, h slog.Handler, r slog.Record) {
	t.Helper()
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestTerminalHandler_PlainLine(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil, false)

	render(t, h, record(slog.LevelInfo, "summarized unit",
		slog.String("path", "a.go"),
		slog.Int("tokens", 42),
		slog.Duration("elapsed", 1234567*time.Microsecond),
	))

	want := "14:05:09.123 INF summarized unit path=a.go tokens=42 elapsed=1.235s\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalHandler_SessionPrefix(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil, false)

	render(t, h, record(slog.LevelWarn, "unit failed",
		slog.String("session_id", "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"),
		slog.String("path", "b.go"),
	))

	want := "14:05:09.123 WRN [1b9d6bcd] unit failed path=b.go\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTerminalHandler_SessionFromHandlerAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil, false).WithAttrs([]slog.Attr{slog.String("session_id", "abc")})

	render(t, h, record(slog.LevelInfo, "done"))

	if !strings.Contains(buf.String(), "INF [abc] done") {
		t.Errorf("expected short session prefix, got %q", buf.String())
	}
}

func TestTerminalHandler_SessionInsideGroupIsAnAttr(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil, false).WithGroup("req")

	render(t, h, record(slog.LevelInfo, "nested", slog.String("session_id", "abc")))

	if !strings.Contains(buf.String(), "req.session_id=abc") {
		t.Errorf("expected grouped attr, got %q", buf.String())
	}
}

func TestTerminalHandler_Levels(t *testing.T) {
	tests := []struct {
		level slog.Level
		label string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
		{slog.LevelError + 4, "ERR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
		render(t, h, record(tt.level, "m"))
		if !strings.Contains(buf.String(), " "+tt.label+" m") {
			t.Errorf("level %v: expected %s in %q", tt.level, tt.label, buf.String())
		}
	}
}

func TestTerminalHandler_Colour(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil, true)

	render(t, h, record(slog.LevelError, "boom", slog.String("session_id", "abcdef0123")))

	out := buf.String()
	if !strings.Contains(out, ansiRed+"ERR"+ansiReset) {
		t.Errorf("expected red level label in %q", out)
	}
	if !strings.Contains(out, ansiMagenta+"[abcdef01]"+ansiReset) {
		t.Errorf("expected coloured session prefix in %q", out)
	}
}

func TestTerminalHandler_Enabled(t *testing.T) {
	h := newTerminalHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}

	def := newTerminalHandler(&bytes.Buffer{}, nil, false)
	if def.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled by default")
	}
}

func TestTerminalHandler_QuotesValues(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil, false)

	render(t, h, record(slog.LevelInfo, "q",
		slog.String("status", "two words"),
		slog.String("empty", ""),
	))

	out := buf.String()
	if !strings.Contains(out, `status="two words"`) || !strings.Contains(out, `empty=""`) {
		t.Errorf("expected quoted values in %q", out)
	}
}

func TestTerminalHandler_GroupAttr(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil, false)

	render(t, h, record(slog.LevelInfo, "g",
		slog.Group("usage", slog.Int("prompt", 10), slog.Int("completion", 3)),
	))

	out := buf.String()
	if !strings.Contains(out, "usage.prompt=10 usage.completion=3") {
		t.Errorf("expected flattened group in %q", out)
	}
	if h.WithGroup("") != h {
		t.Error("empty group name should return the same handler")
	}
}
