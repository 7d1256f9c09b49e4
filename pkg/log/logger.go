package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	scierrors "github.com/YuminosukeSato/airq/pkg/errors"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo)
)

// SetProvider replaces the process-wide logger provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// GetLogger returns the default logger of the current provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with the component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// Setup installs a zerolog provider for the given level and format
// ("json" or "console") and routes pkg/errors warnings through it.
func Setup(level, format string, w io.Writer) (LoggerProvider, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var p *ZerologProvider
	switch strings.ToLower(format) {
	case "", "json":
		p = NewZerologProvider(w, lvl)
	case "console", "text":
		p = NewConsoleProvider(w, lvl)
	default:
		return nil, fmt.Errorf("invalid log format: %q", format)
	}

	SetProvider(p)
	scierrors.SetZerologWarnFunc(p.warn)
	return p, nil
}

// ParseLevel converts a config string to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %q", level)
	}
}
