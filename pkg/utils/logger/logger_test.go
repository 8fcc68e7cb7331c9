package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWritesAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, InfoLevel)

	lg.Debugf("hidden %d", 1)
	lg.Infof("session %x bound", 0x200)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered, got %q", out)
	}
	if !strings.Contains(out, "session 200 bound") {
		t.Errorf("info message missing, got %q", out)
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, ErrorLevel)
	lg.Warn("first")
	lg.SetLevel(DebugLevel)
	lg.Debug("second")

	out := buf.String()
	if strings.Contains(out, "first") {
		t.Errorf("warn should be filtered at error level")
	}
	if !strings.Contains(out, "second") {
		t.Errorf("debug should pass after SetLevel, got %q", out)
	}
}

func TestNamedSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, InfoLevel)
	child := lg.Named("segment")
	lg.SetLevel(DebugLevel)
	child.Debugf("frame %d", 3)

	out := buf.String()
	if !strings.Contains(out, "segment") || !strings.Contains(out, "frame 3") {
		t.Errorf("named logger output mismatch: %q", out)
	}
}

func TestReplaceDefault(t *testing.T) {
	old := Default()
	defer ReplaceDefault(old)

	var buf bytes.Buffer
	ReplaceDefault(New(&buf, InfoLevel))
	Infof("hello %s", "bus")
	if !strings.Contains(buf.String(), "hello bus") {
		t.Errorf("default logger not replaced: %q", buf.String())
	}

	ReplaceDefault(nil)
	if Default() == nil {
		t.Fatal("ReplaceDefault(nil) must keep the current logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
