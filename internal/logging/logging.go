// Package logging provides the ambient logging adapter used by every
// component that performs I/O or retries (retry controller, discovery,
// mapping session, netio, procgw). Pure codec packages (wire, pcp, natpmp,
// upnpsoap, addr) do not log.
//
// Adapted from syncthing's internal/slogutil: a package-scoped adapter
// wrapping log/slog, with per-logger-name level gating and a
// PORTMAPPER_TRACE environment variable (the STTRACE analogue) that
// switches a comma-separated list of logger names to debug level.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type levelTracker struct {
	mut      sync.RWMutex
	defLevel slog.Level
	levels   map[string]slog.Level
}

var globalLevels = &levelTracker{defLevel: slog.LevelInfo, levels: map[string]slog.Level{}}

func init() {
	SetTraceOverrides(os.Getenv("PORTMAPPER_TRACE"))
}

// SetTraceOverrides parses a comma-separated list of logger names (as
// passed via PORTMAPPER_TRACE) and switches each to debug level.
func SetTraceOverrides(trace string) {
	for _, name := range strings.Split(trace, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		globalLevels.Set(name, slog.LevelDebug)
	}
}

// SetDefaultLevel sets the level used for loggers with no specific override.
func SetDefaultLevel(level slog.Level) {
	globalLevels.mut.Lock()
	globalLevels.defLevel = level
	globalLevels.mut.Unlock()
}

func (t *levelTracker) Set(name string, level slog.Level) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.levels[name] = level
}

func (t *levelTracker) Get(name string) slog.Level {
	t.mut.RLock()
	defer t.mut.RUnlock()
	if level, ok := t.levels[name]; ok {
		return level
	}
	return t.defLevel
}

// Adapter is a named logger with level gating independent of the backing
// slog.Logger's own handler level.
type Adapter struct {
	name string
	l    *slog.Logger
}

// New returns an Adapter for the given logger name, e.g.
// "portmapper/pcp" or "portmapper/discovery".
func New(name string) *Adapter {
	return &Adapter{name: name, l: slog.Default().With(slog.String("logger", name))}
}

func (a *Adapter) enabled(level slog.Level) bool {
	return globalLevels.Get(a.name) <= level
}

func (a *Adapter) Debugf(format string, args ...any) {
	if a.enabled(slog.LevelDebug) {
		a.l.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
	}
}

func (a *Adapter) Infof(format string, args ...any) {
	if a.enabled(slog.LevelInfo) {
		a.l.Log(context.Background(), slog.LevelInfo, fmt.Sprintf(format, args...))
	}
}

func (a *Adapter) Warnf(format string, args ...any) {
	if a.enabled(slog.LevelWarn) {
		a.l.Log(context.Background(), slog.LevelWarn, fmt.Sprintf(format, args...))
	}
}

func (a *Adapter) Errorf(format string, args ...any) {
	if a.enabled(slog.LevelError) {
		a.l.Log(context.Background(), slog.LevelError, fmt.Sprintf(format, args...))
	}
}

// ShouldDebug reports whether this logger's name is currently at debug
// level, for callers that want to skip building an expensive debug message.
func (a *Adapter) ShouldDebug() bool {
	return a.enabled(slog.LevelDebug)
}
