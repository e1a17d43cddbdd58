package sysutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-empatalk-backend/internal/config"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestLogWriter_StdoutOnly(t *testing.T) {
	var buf bytes.Buffer
	w, closer := LogWriter(&buf, false, config.LogFileConfig{})
	if closer == nil {
		t.Fatal("closer must not be nil")
	}
	zerolog.New(w).Info().Str("k", "v").Msg("hello")
	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("expected JSON line, got %q", buf.String())
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestLogWriter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	w, _ := LogWriter(&buf, true, config.LogFileConfig{})
	zerolog.New(w).Info().Msg("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console format, got %q", buf.String())
	}
}

func TestLogWriter_RotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "empatalk.log")
	w, closer := LogWriter(&buf, false, config.LogFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	zerolog.New(w).Warn().Msg("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("file=%q stdout=%q", data, buf.String())
	}
}

func TestFirstNonEmpty(t *testing.T) {
	// no args -> ""
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want \"\"", got)
	}
	// only empties -> ""
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(empties) = %q; want \"\"", got)
	}
	// picks first non-empty (preserves original spacing)
	if got := FirstNonEmpty("   ", "  hello  ", "world"); got != "  hello  " {
		t.Fatalf("FirstNonEmpty(...) = %q; want %q", got, "  hello  ")
	}
	// first already non-empty
	if got := FirstNonEmpty("alpha", "beta"); got != "alpha" {
		t.Fatalf("FirstNonEmpty(...) = %q; want %q", got, "alpha")
	}
}
