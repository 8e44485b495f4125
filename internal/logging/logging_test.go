package logging

import (
	"log/slog"
	"testing"
)

func TestSetTraceOverridesSwitchesNamedLoggersToDebug(t *testing.T) {
	t.Cleanup(func() {
		globalLevels.mut.Lock()
		globalLevels.levels = map[string]slog.Level{}
		globalLevels.defLevel = slog.LevelInfo
		globalLevels.mut.Unlock()
	})

	SetTraceOverrides("portmapper/pcp, portmapper/discovery")

	a := New("portmapper/pcp")
	if !a.ShouldDebug() {
		t.Error("portmapper/pcp should be at debug level after SetTraceOverrides")
	}
	b := New("portmapper/discovery")
	if !b.ShouldDebug() {
		t.Error("portmapper/discovery should be at debug level after SetTraceOverrides")
	}
	c := New("portmapper/netio")
	if c.ShouldDebug() {
		t.Error("portmapper/netio was not named in PORTMAPPER_TRACE, should not be at debug level")
	}
}

func TestSetTraceOverridesIgnoresBlankEntries(t *testing.T) {
	t.Cleanup(func() {
		globalLevels.mut.Lock()
		globalLevels.levels = map[string]slog.Level{}
		globalLevels.defLevel = slog.LevelInfo
		globalLevels.mut.Unlock()
	})

	SetTraceOverrides(" , ,")

	if len(globalLevels.levels) != 0 {
		t.Errorf("levels = %v, want empty (blank entries must be ignored)", globalLevels.levels)
	}
}

func TestSetDefaultLevelAffectsLoggersWithNoOverride(t *testing.T) {
	t.Cleanup(func() {
		globalLevels.mut.Lock()
		globalLevels.levels = map[string]slog.Level{}
		globalLevels.defLevel = slog.LevelInfo
		globalLevels.mut.Unlock()
	})

	a := New("portmapper/unset")
	if a.ShouldDebug() {
		t.Fatal("default level should not be debug")
	}

	SetDefaultLevel(slog.LevelDebug)
	if !a.ShouldDebug() {
		t.Error("after SetDefaultLevel(Debug), an unoverridden logger should report ShouldDebug true")
	}
}
