// Package logx provides the engine's structured logging wrapper. The
// call convention — Info(msg string, keysAndValues ...interface{}) —
// matches the teacher corpus's own logx packages
// (pkg/logx/performance_logger.go and the sibling starfail
// pkg/logx/logger.go); here it is backed by logrus rather than
// hand-rolled JSON encoding, so the engine gets logrus's hooks (syslog,
// file rotation) for free.
package logx

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger carrying a fixed set of contextual
// fields (set at construction or via WithField/WithFields) plus
// per-call key/value pairs.
type Logger struct {
	entry *logrus.Entry
}

// New creates a Logger at the given level (debug|info|warn|error|trace,
// case-insensitive; unrecognized values default to info) tagged with
// component.
func New(level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "msg",
			logrus.FieldKeyLevel: "level",
		},
	})
	base.SetLevel(parseLevel(level))

	entry := base.WithField("component", component)
	return &Logger{entry: entry}
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel changes the underlying logger's level at runtime.
func (l *Logger) SetLevel(level string) {
	l.entry.Logger.SetLevel(parseLevel(level))
}

// WithField returns a new Logger with an additional persistent field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a new Logger with additional persistent fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// Trace logs at trace level.
func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Trace(msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Info(msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Warn(msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Error(msg)
}

// Noop returns a Logger that discards everything, for tests that don't
// care about log output.
func Noop() *Logger {
	l := New("error", "noop")
	l.entry.Logger.SetOutput(noopWriter{})
	return l
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
