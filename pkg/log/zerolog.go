package log

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	gpvierrors "github.com/ezoic/gpvi/pkg/errors"
)

// ZerologProvider is a LoggerProvider backed by zerolog.
type ZerologProvider struct {
	mu     sync.RWMutex
	root   zerolog.Logger
	level  Level
	output *zerolog.Logger
}

// NewZerologProvider creates a provider writing JSON records to stderr at the
// given minimum level. It also installs a zerolog sink for the library-wide
// warning channel so non-fatal warnings become structured events.
func NewZerologProvider(level Level) *ZerologProvider {
	root := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(toZerologLevel(level))
	p := &ZerologProvider{root: root, level: level}

	p.installWarnSink()
	return p
}

func (p *ZerologProvider) installWarnSink() {
	gpvierrors.SetZerologWarnFunc(func(warning error) {
		root := p.rootLogger()
		ev := root.Warn()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev.Object("warning", obj)
		}
		ev.Msg(warning.Error())
	})
}

// NewZerologProviderWithLogger wraps an existing zerolog.Logger, useful for
// tests and for callers that already configure zerolog themselves.
func NewZerologProviderWithLogger(logger zerolog.Logger, level Level) *ZerologProvider {
	return &ZerologProvider{root: logger.Level(toZerologLevel(level)), level: level}
}

func (p *ZerologProvider) rootLogger() zerolog.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root
}

// GetLogger returns the default logger instance.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{logger: p.rootLogger(), provider: p}
}

// GetLoggerWithName returns a logger tagged with a component name.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{
		logger:   p.rootLogger().With().Str(ComponentKey, name).Logger(),
		provider: p,
	}
}

// SetLevel sets the minimum log level for all loggers from this provider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	p.root = p.root.Level(toZerologLevel(level))
}

// ToLogLevel converts a level name ("debug", "info", "warn", "error") to a
// Level. Unknown names fall back to LevelInfo.
func ToLogLevel(level string) Level {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// zerologLogger adapts zerolog.Logger to the Logger interface.
type zerologLogger struct {
	logger   zerolog.Logger
	provider *ZerologProvider
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(l.logger.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(l.logger.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(l.logger.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	ev := l.logger.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			fields = fields[1:]
		}
	}
	l.emit(ev, msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{logger: ctx.Logger(), provider: l.provider}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.logger.GetLevel()
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case int64:
			ev = ev.Int64(key, v)
		case float64:
			ev = ev.Float64(key, v)
		case bool:
			ev = ev.Bool(key, v)
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
