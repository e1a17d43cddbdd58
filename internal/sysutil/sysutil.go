// Package sysutil holds process-level helpers: log level and sinks, and
// small string utilities.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tbourn/go-empatalk-backend/internal/config"
)

// SetLogLevel configures the global zerolog level.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// LogWriter builds the sink for the global logger: stdout (console format
// when pretty) plus, when file.Path is set, a rotating JSON file. The
// returned closer releases the file and is never nil.
func LogWriter(stdout io.Writer, pretty bool, file config.LogFileConfig) (io.Writer, io.Closer) {
	var console io.Writer = stdout
	if pretty {
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}
	if strings.TrimSpace(file.Path) == "" {
		return console, io.NopCloser(nil)
	}

	rot := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   true,
	}
	return zerolog.MultiLevelWriter(console, rot), rot
}

// FirstNonEmpty returns the first value that is not blank, unmodified, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
