package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = newLogger(os.Stdout, "development", "debug")
)

// Init replaces the process logger. Development gets a console writer,
// every other environment gets JSON lines.
func Init(environment, level string) {
	SetOutput(os.Stdout, environment, level)
}

// SetOutput is Init with an explicit sink; tests point it at a buffer.
func SetOutput(w io.Writer, environment, level string) {
	mu.Lock()
	defer mu.Unlock()
	log = newLogger(w, environment, level)
}

func newLogger(w io.Writer, environment, level string) zerolog.Logger {
	if environment == "development" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

func Info(format string, v ...interface{}) {
	current().Info().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	current().Error().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	current().Debug().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	current().Warn().Msgf(format, v...)
}

// With returns a child logger carrying a component field, for packages
// that log structured fields instead of printf lines.
func With(component string) zerolog.Logger {
	return current().With().Str("component", component).Logger()
}

// WithContext formats a message prefixed with a caller-supplied context value.
func WithContext(ctx interface{}, format string, v ...interface{}) string {
	if ctx == nil {
		return fmt.Sprintf(format, v...)
	}
	return fmt.Sprintf("[%v] %s", ctx, fmt.Sprintf(format, v...))
}
