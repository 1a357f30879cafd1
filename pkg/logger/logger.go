// Package logger owns the process-wide structured logger. All output goes to
// stderr because stdout carries the tap's protocol stream.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	current = newLogger(os.Stderr, slog.LevelInfo)
)

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Init replaces the process logger. A nil writer means stderr.
func Init(w io.Writer, level slog.Level, attrs ...any) {
	if w == nil {
		w = os.Stderr
	}
	l := newLogger(w, level)
	if len(attrs) > 0 {
		l = l.With(attrs...)
	}
	mu.Lock()
	current = l
	mu.Unlock()
}

// L returns the process logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

func Infof(format string, v ...interface{}) {
	L().Info(fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	L().Debug(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	L().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	L().Error(fmt.Sprintf(format, v...))
}
