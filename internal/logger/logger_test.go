package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "point", "1,2")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["point"] != "1,2" {
		t.Errorf("record = %v", rec)
	}
	if L() != l {
		t.Error("L() does not return the configured logger")
	}
	if Or(nil) != l {
		t.Error("Or(nil) does not fall back to the default")
	}
}
