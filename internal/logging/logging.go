// Package logging wires the process-wide slog logger to the hub's
// LogSink and prints the startup banner.
package logging

import (
	"log/slog"
	"strings"

	"github.com/clach04/copyparty/internal/logsink"
)

// Level is the global atomic log level. It can be changed at runtime
// (e.g. via reload) without restarting the process.
var Level = new(slog.LevelVar) // default: INFO

// Setup installs sink as the destination for the process-wide slog
// logger, routing every ambient log.Info/Warn/Error call through the
// same serialized, rotating stream that LogSink.Log uses directly.
func Setup(sink *logsink.Sink) {
	slog.SetDefault(slog.New(logsink.NewHandler(sink, Level)))
}

// SetLevel changes the global log level.
func SetLevel(l slog.Level) { Level.Set(l) }

// GetLevel returns the current global log level.
func GetLevel() slog.Level { return Level.Level() }

// ParseLevel converts a string like "debug", "info", "warn", "error"
// to the corresponding slog.Level. It is case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(s)))
	return l, err
}
