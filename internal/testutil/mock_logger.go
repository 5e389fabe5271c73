// Package testutil holds fakes shared by package tests.
package testutil

import (
	"strings"
	"sync"

	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

// LogEntry is one call captured by RecordingLogger.
type LogEntry struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// Field returns the value recorded under key, or nil.
func (e LogEntry) Field(key string) interface{} {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

type logSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// RecordingLogger implements logging.Logger and keeps every entry in memory.
// Children created via With or Named share the parent's sink.
type RecordingLogger struct {
	sink   *logSink
	name   string
	fields []logging.Field
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{sink: &logSink{}}
}

func (r *RecordingLogger) record(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(r.fields)+len(fields))
	all = append(all, r.fields...)
	all = append(all, fields...)

	r.sink.mu.Lock()
	r.sink.entries = append(r.sink.entries, LogEntry{Level: level, Logger: r.name, Message: msg, Fields: all})
	r.sink.mu.Unlock()
}

func (r *RecordingLogger) Debug(msg string, fields ...logging.Field) { r.record("debug", msg, fields) }
func (r *RecordingLogger) Info(msg string, fields ...logging.Field)  { r.record("info", msg, fields) }
func (r *RecordingLogger) Warn(msg string, fields ...logging.Field)  { r.record("warn", msg, fields) }
func (r *RecordingLogger) Error(msg string, fields ...logging.Field) { r.record("error", msg, fields) }

func (r *RecordingLogger) With(fields ...logging.Field) logging.Logger {
	merged := append(append([]logging.Field{}, r.fields...), fields...)
	return &RecordingLogger{sink: r.sink, name: r.name, fields: merged}
}

func (r *RecordingLogger) Named(name string) logging.Logger {
	full := name
	if r.name != "" {
		full = r.name + "." + name
	}
	return &RecordingLogger{sink: r.sink, name: full, fields: r.fields}
}

func (r *RecordingLogger) Sync() error { return nil }

// Entries returns a snapshot of everything logged so far.
func (r *RecordingLogger) Entries() []LogEntry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	out := make([]LogEntry, len(r.sink.entries))
	copy(out, r.sink.entries)
	return out
}

// Has reports whether an entry at level contains substr in its message.
func (r *RecordingLogger) Has(level, substr string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (r *RecordingLogger) Reset() {
	r.sink.mu.Lock()
	r.sink.entries = nil
	r.sink.mu.Unlock()
}
