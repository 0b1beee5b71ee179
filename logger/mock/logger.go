package mocklogger

import (
	"sync"

	"github.com/hugolhafner/go-tasks/logger"
)

var _ logger.Logger = (*MockLogger)(nil)

type LogEntry struct {
	Level   logger.LogLevel
	Message string
	KV      []any
}

type sink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// MockLogger records every entry. Loggers derived with With share the parent's
// entries so assertions on the root see everything logged by components.
type MockLogger struct {
	sink *sink
	args []any
}

func New() *MockLogger {
	return &MockLogger{sink: &sink{}}
}

func (m *MockLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()

	m.sink.entries = append(
		m.sink.entries, LogEntry{
			Level:   level,
			Message: msg,
			KV:      kv,
		},
	)
}

// Entries returns a snapshot of everything logged so far.
func (m *MockLogger) Entries() []LogEntry {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()

	out := make([]LogEntry, len(m.sink.entries))
	copy(out, m.sink.entries)
	return out
}

// Args returns the fields bound through With.
func (m *MockLogger) Args() []any {
	return m.args
}

func (m *MockLogger) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (m *MockLogger) With(kv ...any) logger.Logger {
	args := make([]any, 0, len(m.args)+len(kv))
	args = append(args, m.args...)
	args = append(args, kv...)

	return &MockLogger{
		sink: m.sink,
		args: args,
	}
}

func (m *MockLogger) Debug(msg string, kv ...any) {
	m.Log(logger.DebugLevel, msg, kv...)
}

func (m *MockLogger) Info(msg string, kv ...any) {
	m.Log(logger.InfoLevel, msg, kv...)
}

func (m *MockLogger) Warn(msg string, kv ...any) {
	m.Log(logger.WarnLevel, msg, kv...)
}

func (m *MockLogger) Error(msg string, kv ...any) {
	m.Log(logger.ErrorLevel, msg, kv...)
}
