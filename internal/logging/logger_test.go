package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"production", "development", ""} {
		l, err := New(mode, "debug")
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		l.Debug("hello", "mode", mode)
	}
	if _, err := New("production", "shouting"); err == nil {
		t.Fatalf("expected bad level error")
	}
}

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).With("component", "test")
	l.Debug("d")
	l.Info("i", "k", 1)
	l.Warn("w")
	l.Error("e", "err", "boom")
	l.Sync()

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[1].ContextMap()["component"] != "test" || entries[1].ContextMap()["k"] != int64(1) {
		t.Fatalf("unexpected fields %v", entries[1].ContextMap())
	}
	if Nop().Zap() == nil {
		t.Fatalf("expected nop zap logger")
	}
}
