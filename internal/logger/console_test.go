package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, "warn")

	log.Tracef("trace message")
	log.Debugf("debug message")
	log.Infof("info message")
	log.Warnf("warn message")
	log.Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "info message") {
		t.Errorf("info should be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "WARN warn message") {
		t.Errorf("expected warn message, got %q", out)
	}
	if !strings.Contains(out, "ERROR error message") {
		t.Errorf("expected error message, got %q", out)
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, "loud")

	log.Debugf("debug message")
	log.Infof("info message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Errorf("debug should be filtered at default info level, got %q", out)
	}
	if !strings.Contains(out, "info message") {
		t.Errorf("expected info message, got %q", out)
	}
}

func TestTimestampPrefix(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, "info")

	log.Infof("formatted %d %s", 42, "args")

	out := buf.String()
	if len(out) < 11 || out[0] != '[' || out[9] != ']' {
		t.Fatalf("expected [HH:MM:SS] prefix, got %q", out)
	}
	if !strings.Contains(out, "formatted 42 args") {
		t.Errorf("expected formatted message, got %q", out)
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	// Must not panic with a nil writer.
	log.Infof("into the void")
	log.Errorf("still nothing")
}

func TestNoColorForNonTerminalWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, "error")

	log.Errorf("plain output")

	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected no ANSI escapes for a buffer writer, got %q", buf.String())
	}
}
