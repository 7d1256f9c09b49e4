package log

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger returns a JSON logger writing to w.
func NewZerologLogger(w io.Writer, level Level) *ZerologLogger {
	return &ZerologLogger{
		zl: zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger(),
	}
}

func (l *ZerologLogger) Debug(msg string, fields ...any) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, fields ...any) {
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, fields ...any) {
	l.zl.Warn().Fields(fields).Msg(msg)
}

// Error attaches a leading error value with its stack trace, and its
// structured form when the error chain carries a zerolog object marshaler.
func (l *ZerologLogger) Error(msg string, fields ...any) {
	ev := l.zl.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = withError(ev, err)
			fields = fields[1:]
		}
	}
	ev.Fields(fields).Msg(msg)
}

func (l *ZerologLogger) With(fields ...any) Logger {
	return &ZerologLogger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

func withError(ev *zerolog.Event, err error) *zerolog.Event {
	ev = ev.Err(err)
	if st := extractStacktrace(err); st != "" {
		ev = ev.Str(StacktraceKey, st)
	}
	var m zerolog.LogObjectMarshaler
	if errors.As(err, &m) {
		ev = ev.Object("error.detail", m)
	}
	return ev
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
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

// ZerologProvider hands out component loggers that share one writer.
type ZerologProvider struct {
	mu   sync.RWMutex
	base zerolog.Logger
}

// NewZerologProvider creates a provider writing JSON lines to w.
func NewZerologProvider(w io.Writer, level Level) *ZerologProvider {
	return newZerologProvider(zerolog.New(w), level)
}

// NewConsoleProvider creates a provider with human-readable output.
func NewConsoleProvider(w io.Writer, level Level) *ZerologProvider {
	return newZerologProvider(zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}), level)
}

func newZerologProvider(zl zerolog.Logger, level Level) *ZerologProvider {
	return &ZerologProvider{
		base: zl.Level(toZerologLevel(level)).With().Timestamp().Logger(),
	}
}

func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ZerologLogger{zl: p.base}
}

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ZerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger()}
}

// SetLevel affects loggers obtained after the call.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

// warn is installed as the pkg/errors warning sink.
func (p *ZerologProvider) warn(w error) {
	p.mu.RLock()
	ev := p.base.Warn().Str(ComponentKey, "warnings")
	p.mu.RUnlock()
	if m, ok := w.(zerolog.LogObjectMarshaler); ok {
		ev = ev.Object("warning", m)
	}
	ev.Msg(w.Error())
}
