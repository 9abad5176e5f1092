// Package logger builds the process slog.Logger: a colored console sink, an
// optional rotating JSON file sink, and redaction of secrets on both.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultSensitiveKeys are attribute keys whose values are never logged.
var DefaultSensitiveKeys = []string{"token", "secret", "password", "api_key", "dsn", "authorization"}

// Options defines parameters for logger creation.
type Options struct {
	Env          string // dev enables short timestamps
	ConsoleLevel string // default info
	FileLevel    string // default debug
	File         string // empty disables the file sink
	App          string

	// Console defaults to os.Stdout.
	Console io.Writer

	// Rotation of File. Zero values take the defaults below.
	MaxSizeMB  int // 5
	MaxBackups int // 3
	MaxAgeDays int // 28

	// ExtraSensitiveKeys are redacted in addition to DefaultSensitiveKeys.
	ExtraSensitiveKeys []string
}

var closers sync.Map

// New creates configured slog.Logger instance.
func New(o Options) *slog.Logger {
	console := o.Console
	if console == nil {
		console = os.Stdout
	}
	keys := append(append([]string(nil), DefaultSensitiveKeys...), o.ExtraSensitiveKeys...)

	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}
	consoleHandler := NewRedactingHandler(tint.NewHandler(console, &tint.Options{
		Level:      levelFromString(o.ConsoleLevel, slog.LevelInfo),
		TimeFormat: timeFormat,
		NoColor:    console != os.Stdout && console != os.Stderr,
	}), keys)

	handlers := []slog.Handler{consoleHandler}

	var closer func() error
	if o.File != "" {
		fw := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    orDefault(o.MaxSizeMB, 5),
			MaxBackups: orDefault(o.MaxBackups, 3),
			MaxAge:     orDefault(o.MaxAgeDays, 28),
			Compress:   true,
		}
		closer = fw.Close
		fileHandler := slog.NewJSONHandler(fw, &slog.HandlerOptions{
			Level: levelFromString(o.FileLevel, slog.LevelDebug),
		})
		handlers = append(handlers, NewRedactingHandler(fileHandler, keys))
	}

	var h slog.Handler = consoleHandler
	if len(handlers) > 1 {
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(h).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)
	if closer != nil {
		closers.Store(l, closer)
	}
	return l
}

// Close releases the file sink of a logger built by New.
// Should be called when shutting down the application.
func Close(logger *slog.Logger) error {
	if c, ok := closers.LoadAndDelete(logger); ok {
		return c.(func() error)()
	}
	return nil
}

// ParseLevel reports whether s names a level accepted by Options.
func ParseLevel(s string) bool {
	switch strings.ToLower(s) {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

func levelFromString(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
