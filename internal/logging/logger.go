// Package logging provides correlation-tagged structured logging.
//
// A ContextLogger carries a fixed set of fields (job_id, company_name,
// api_name, ...) that are attached to every record it emits. With returns
// a child carrying the merged fields; the parent is never modified.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/phuslu/log"
)

type Config struct {
	Level string
	JSON  bool
	// File, when set, receives a copy of every record.
	File string
}

type ContextLogger struct {
	logger log.Logger
}

// New builds the root logger. The returned closer releases the log file.
func New(cfg Config) (*ContextLogger, func() error, error) {
	writer := io.Writer(os.Stdout)
	closer := func() error { return nil }

	if path := strings.TrimSpace(cfg.File); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writer = io.MultiWriter(os.Stdout, file)
		closer = file.Close
	}

	logger := log.Logger{
		Level:      log.ParseLevel(strings.ToLower(firstNonEmpty(cfg.Level, "info"))),
		TimeField:  "timestamp",
		TimeFormat: time.RFC3339Nano,
	}
	if cfg.JSON {
		logger.Writer = &log.IOWriter{Writer: writer}
	} else {
		logger.Writer = &log.ConsoleWriter{Writer: writer}
	}
	return &ContextLogger{logger: logger}, closer, nil
}

// NewWithWriter builds a JSON logger writing to w.
func NewWithWriter(w io.Writer, level string) *ContextLogger {
	return &ContextLogger{logger: log.Logger{
		Level:      log.ParseLevel(firstNonEmpty(level, "debug")),
		TimeField:  "timestamp",
		TimeFormat: time.RFC3339Nano,
		Writer:     &log.IOWriter{Writer: w},
	}}
}

// Nop discards everything.
func Nop() *ContextLogger {
	return NewWithWriter(io.Discard, "error")
}

// With returns a child logger whose context is the parent's plus the given
// key/value pairs.
func (l *ContextLogger) With(keysAndValues ...any) *ContextLogger {
	if l == nil {
		return nil
	}
	child := l.logger
	entry := log.NewContext(append([]byte(nil), l.logger.Context...))
	child.Context = appendFields(entry, keysAndValues).Value()
	return &ContextLogger{logger: child}
}

// WithJob tags records with the job correlation fields.
func (l *ContextLogger) WithJob(jobID, companyName string) *ContextLogger {
	return l.With("job_id", jobID, "company_name", companyName)
}

func (l *ContextLogger) Debug(msg string, keysAndValues ...any) {
	l.emit(l.entry(log.DebugLevel), msg, keysAndValues)
}

func (l *ContextLogger) Info(msg string, keysAndValues ...any) {
	l.emit(l.entry(log.InfoLevel), msg, keysAndValues)
}

func (l *ContextLogger) Warn(msg string, keysAndValues ...any) {
	l.emit(l.entry(log.WarnLevel), msg, keysAndValues)
}

func (l *ContextLogger) Error(msg string, keysAndValues ...any) {
	l.emit(l.entry(log.ErrorLevel), msg, keysAndValues)
}

// Exception logs err at error level with its Go type, message and the
// current goroutine stack.
func (l *ContextLogger) Exception(err error, msg string, keysAndValues ...any) {
	entry := l.entry(log.ErrorLevel)
	if entry == nil || err == nil {
		l.emit(entry, msg, keysAndValues)
		return
	}
	entry = entry.
		Str("error_type", fmt.Sprintf("%T", err)).
		Str("error", err.Error()).
		Str("trace", string(debug.Stack()))
	l.emit(entry, msg, keysAndValues)
}

func (l *ContextLogger) entry(level log.Level) *log.Entry {
	if l == nil {
		return nil
	}
	switch level {
	case log.DebugLevel:
		return l.logger.Debug()
	case log.WarnLevel:
		return l.logger.Warn()
	case log.ErrorLevel:
		return l.logger.Error()
	default:
		return l.logger.Info()
	}
}

func (l *ContextLogger) emit(entry *log.Entry, msg string, keysAndValues []any) {
	if entry == nil {
		return
	}
	appendFields(entry, keysAndValues).Msg(msg)
}

func appendFields(entry *log.Entry, keysAndValues []any) *log.Entry {
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		if i+1 >= len(keysAndValues) {
			entry = entry.Str(key, "")
			break
		}
		switch value := keysAndValues[i+1].(type) {
		case error:
			if value == nil {
				entry = entry.Str(key, "")
			} else {
				entry = entry.Str(key, value.Error())
			}
		case time.Duration:
			entry = entry.Int64(key, value.Milliseconds())
		default:
			entry = entry.Any(key, value)
		}
	}
	return entry
}

type contextKey struct{}

// IntoContext stores l in ctx so collaborators shared across jobs can log
// with the caller's correlation fields.
func IntoContext(ctx context.Context, l *ContextLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback.
func FromContext(ctx context.Context, fallback *ContextLogger) *ContextLogger {
	if l, ok := ctx.Value(contextKey{}).(*ContextLogger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return Nop()
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
