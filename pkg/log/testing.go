package log

import (
	"context"
	"fmt"
	"sync"
)

// TestRecord is a single captured log record.
type TestRecord struct {
	Level   Level
	Message string
	Fields  map[string]interface{}
}

// TestLogger captures log records in memory for inspection in tests.
type TestLogger struct {
	mu      sync.Mutex
	level   Level
	fields  map[string]interface{}
	records *[]TestRecord
}

// NewTestLogger creates a TestLogger capturing records at or above the given
// level. The returned slice pointer is shared by loggers derived via With.
func NewTestLogger(level Level) (*TestLogger, *[]TestRecord) {
	records := &[]TestRecord{}
	return &TestLogger{
		level:   level,
		fields:  make(map[string]interface{}),
		records: records,
	}, records
}

// Debug implements Logger.Debug.
func (t *TestLogger) Debug(msg string, fields ...any) { t.record(LevelDebug, msg, fields) }

// Info implements Logger.Info.
func (t *TestLogger) Info(msg string, fields ...any) { t.record(LevelInfo, msg, fields) }

// Warn implements Logger.Warn.
func (t *TestLogger) Warn(msg string, fields ...any) { t.record(LevelWarn, msg, fields) }

// Error implements Logger.Error.
func (t *TestLogger) Error(msg string, fields ...any) { t.record(LevelError, msg, fields) }

// With implements Logger.With.
func (t *TestLogger) With(fields ...any) Logger {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make(map[string]interface{}, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		merged[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		merged[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}
	return &TestLogger{level: t.level, fields: merged, records: t.records}
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return level >= t.level
}

func (t *TestLogger) record(level Level, msg string, fields []any) {
	if level < t.level {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := TestRecord{Level: level, Message: msg, Fields: make(map[string]interface{})}
	for k, v := range t.fields {
		rec.Fields[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		rec.Fields[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}
	*t.records = append(*t.records, rec)
}

// TestProvider is a LoggerProvider handing out TestLoggers sharing a single
// record store.
type TestProvider struct {
	Logger  *TestLogger
	Records *[]TestRecord
}

// NewTestProvider creates a TestProvider capturing at the given level.
func NewTestProvider(level Level) *TestProvider {
	logger, records := NewTestLogger(level)
	return &TestProvider{Logger: logger, Records: records}
}

// GetLogger implements LoggerProvider.
func (p *TestProvider) GetLogger() Logger { return p.Logger }

// GetLoggerWithName implements LoggerProvider.
func (p *TestProvider) GetLoggerWithName(name string) Logger {
	return p.Logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.
func (p *TestProvider) SetLevel(level Level) { p.Logger.level = level }
