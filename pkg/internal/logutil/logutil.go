package logutil

import (
    "io"
    "os"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog"
)

var (
    mu       sync.RWMutex
    fallback zerolog.Logger
)

func init() {
    format := os.Getenv("PROBE_LOG_FORMAT")
    json := format == "json" || os.Getenv("PROBE_LOG_JSON") == "1"
    fallback = New(os.Stderr, json, os.Getenv("PROBE_LOG_LEVEL"))
}

// New builds a logger writing JSON lines or human readable console output.
func New(w io.Writer, json bool, level string) zerolog.Logger {
    if w == nil { w = os.Stderr }
    if !json {
        w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
    }
    return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
    switch strings.ToLower(strings.TrimSpace(level)) {
    case "error":
        return zerolog.ErrorLevel
    case "warn", "warning":
        return zerolog.WarnLevel
    case "debug":
        return zerolog.DebugLevel
    case "trace":
        return zerolog.TraceLevel
    }
    return zerolog.InfoLevel
}

// Default returns the process wide logger configured from the environment.
func Default() *zerolog.Logger {
    mu.RLock()
    defer mu.RUnlock()
    l := fallback
    return &l
}

// SetDefault replaces the process wide logger, e.g. after flags are parsed.
func SetDefault(l zerolog.Logger) {
    mu.Lock()
    fallback = l
    mu.Unlock()
}

// Named returns l (or the default logger) tagged with a component name.
func Named(l *zerolog.Logger, component string) *zerolog.Logger {
    if l == nil { l = Default() }
    out := l.With().Str("component", component).Logger()
    return &out
}

func Debugf(l *zerolog.Logger, f string, args ...any) { pick(l).Debug().Msgf(f, args...) }
func Infof(l *zerolog.Logger, f string, args ...any)  { pick(l).Info().Msgf(f, args...) }
func Warnf(l *zerolog.Logger, f string, args ...any)  { pick(l).Warn().Msgf(f, args...) }
func Errorf(l *zerolog.Logger, f string, args ...any) { pick(l).Error().Msgf(f, args...) }

func pick(l *zerolog.Logger) *zerolog.Logger {
    if l == nil { return Default() }
    return l
}
