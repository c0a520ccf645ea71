// Package logging provides context-scoped structured logging for spfs
// operations, modeled on the registry's internal context logger.
package logging

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger   = logrus.StandardLogger().WithField("component", "spfs")
	defaultLoggerMu sync.RWMutex
)

// Logger provides a leveled-logging interface, matching the subset of
// logrus.Entry that spfs code is allowed to call through.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)

	Info(args ...any)
	Infof(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	WithError(err error) *logrus.Entry
	WithField(key string, value any) *logrus.Entry
}

type loggerKey struct{}

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger attached to ctx, or the package default if
// none was attached.
func GetLogger(ctx context.Context) Logger {
	if v := ctx.Value(loggerKey{}); v != nil {
		if logger, ok := v.(Logger); ok {
			return logger
		}
	}
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// GetLoggerWithField returns a logger from ctx with one extra field, without
// mutating ctx.
func GetLoggerWithField(ctx context.Context, key string, value any) Logger {
	return GetLogger(ctx).WithField(key, value)
}

// SetDefaultLogger replaces the package-wide fallback logger.
func SetDefaultLogger(entry *logrus.Entry) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = entry
}

// Fieldf is a convenience for building a one-off field name from a format.
func Fieldf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
