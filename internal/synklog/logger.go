// Package synklog constructs the daemon's one shared zerolog.Logger, built
// once at startup and threaded into the pool, session manager, and control
// server constructors rather than used as a package-level global.
package synklog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger writing to w: pretty console output when pretty is
// true (an interactive terminal), structured JSON otherwise, at levelStr's
// level (invalid or empty names fall back to info).
func New(w io.Writer, levelStr string, pretty bool) zerolog.Logger {
	var out io.Writer = w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(parseLevel(levelStr)).
		With().
		Timestamp().
		Logger()
}

func parseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Default is a convenience for callers that just want stderr at info level.
func Default() zerolog.Logger {
	return New(os.Stderr, "info", false)
}
