package internal

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevelsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(LogLevelInfo, &buf).With("ope")

	logger.Debug("hidden %d", 1)
	logger.Info("value=%.2f", 1.5)
	logger.Warn("degenerate")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at INFO level")
	}
	if !strings.Contains(out, "[INFO] [ope] value=1.50") {
		t.Errorf("missing info line: %q", out)
	}
	if !strings.Contains(out, "[WARN] [ope] degenerate") {
		t.Errorf("missing warn line: %q", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"error": LogLevelError,
		"WARN":  LogLevelWarn,
		"debug": LogLevelDebug,
		"TRACE": LogLevelTrace,
		"":      LogLevelInfo,
		"loud":  LogLevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
