package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestStdLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn, FormatText)

	logger.Debug("dropped %d", 1)
	logger.Info("dropped too")
	logger.Warn("kept %s", "warning")
	logger.Error("kept error")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("expected messages below warn to be dropped, got:\n%s", out)
	}
	if !strings.Contains(out, "kept warning") || !strings.Contains(out, "kept error") {
		t.Fatalf("expected warn and error lines, got:\n%s", out)
	}
}

func TestStdLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo, FormatText)

	logger.Debug("before")
	logger.SetLevel(LevelDebug)
	logger.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Fatalf("expected debug dropped at info level, got:\n%s", out)
	}
	if !strings.Contains(out, "after") {
		t.Fatalf("expected debug emitted after SetLevel, got:\n%s", out)
	}
}

func TestStdLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo, FormatJSON)
	logger.Info("hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello world"`) || !strings.Contains(out, `"level":"info"`) {
		t.Fatalf("expected JSON line, got:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"warn":    LevelWarn,
		"WARNING": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"bogus":   LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b bytes.Buffer
	logger := Multi(New(&a, LevelInfo, FormatText), New(&b, LevelInfo, FormatText), nil)
	logger.Info("fan out")

	if !strings.Contains(a.String(), "fan out") || !strings.Contains(b.String(), "fan out") {
		t.Fatal("expected the message in both sinks")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected OrNop(nil) to return a usable logger")
	}
	var typed *StdLogger
	OrNop(typed).Info("must not panic")
}
