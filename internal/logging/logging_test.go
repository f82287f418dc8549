package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		wantErr bool
	}{
		{"", zapcore.WarnLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			l, err := New(Options{Level: tc.level})
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if !l.Core().Enabled(tc.enabled) {
				t.Errorf("level %s should be enabled", tc.enabled)
			}
			if tc.enabled > zapcore.DebugLevel && l.Core().Enabled(tc.enabled-1) {
				t.Errorf("level %s should be disabled", tc.enabled-1)
			}
		})
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.log")
	l, err := New(Options{Level: "info", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("stage", zap.String("name", "marshal"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"name":"marshal"`) {
		t.Errorf("log file missing JSON record: %s", data)
	}
}

func TestMust_FallsBackToNop(t *testing.T) {
	if l := Must(Options{Level: "loud"}); l == nil {
		t.Fatal("Must returned nil")
	}
}

func TestParseSectionSpec(t *testing.T) {
	tests := []struct {
		in       string
		file     string
		prefixes []string
		ok       bool
	}{
		{"", "", nil, false},
		{"/tmp/x.log", "/tmp/x.log", nil, true},
		{"boot:-", "-", []string{"boot"}, true},
		{"boot-entry, boot-marshal:/tmp/y", "/tmp/y", []string{"boot-entry", "boot-marshal"}, true},
		{"boot:", "-", []string{"boot"}, true},
		{`C:\logs\boot.log`, `C:\logs\boot.log`, nil, true},
		{"d:/logs/boot.log", "d:/logs/boot.log", nil, true},
		{`boot,engine:C:\logs\boot.log`, `C:\logs\boot.log`, []string{"boot", "engine"}, true},
		{"b:-", "-", []string{"b"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			spec, ok := ParseSectionSpec(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if spec.File != tc.file {
				t.Errorf("File = %q, want %q", spec.File, tc.file)
			}
			if strings.Join(spec.Prefixes, "|") != strings.Join(tc.prefixes, "|") {
				t.Errorf("Prefixes = %v, want %v", spec.Prefixes, tc.prefixes)
			}
		})
	}
}

func TestSectionSpec_Matches(t *testing.T) {
	all := SectionSpec{}
	if !all.Matches("anything") {
		t.Error("empty prefix list should match everything")
	}
	some := SectionSpec{Prefixes: []string{"boot-m"}}
	if !some.Matches("boot-marshal") {
		t.Error("prefix should match")
	}
	if some.Matches("boot-entry") {
		t.Error("non-matching prefix should not match")
	}
}

func newObserved(spec SectionSpec) (*Sections, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewSections(zap.New(core), spec)
	tick := time.Unix(0, 0)
	s.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return s, logs
}

func TestSections_Nesting(t *testing.T) {
	s, logs := newObserved(SectionSpec{})

	s.Start("boot-startup")
	s.Start("boot-startup-preinit")
	s.Stop("boot-startup-preinit")
	s.Stop("boot-startup")

	if s.Depth() != 0 {
		t.Errorf("Depth = %d after balanced sections", s.Depth())
	}

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	wantMsgs := []string{"debug_start", "debug_start", "debug_stop", "debug_stop"}
	for i, e := range entries {
		if e.Message != wantMsgs[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Message, wantMsgs[i])
		}
	}
	elapsed, ok := entries[3].ContextMap()["elapsed"].(time.Duration)
	if !ok || elapsed != 3*time.Millisecond {
		t.Errorf("outer elapsed = %v, want 3ms", entries[3].ContextMap()["elapsed"])
	}
}

func TestSections_MismatchedStop(t *testing.T) {
	s, logs := newObserved(SectionSpec{})

	s.Start("boot-marshal")
	s.Stop("boot-entry")

	if s.Depth() != 1 {
		t.Errorf("mismatched Stop should leave section open, depth %d", s.Depth())
	}
	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errs) != 1 {
		t.Fatalf("want one nesting error, got %d", len(errs))
	}
	if errs[0].ContextMap()["open"] != "boot-marshal" {
		t.Errorf("open = %v", errs[0].ContextMap()["open"])
	}
}

func TestSections_Filter(t *testing.T) {
	s, logs := newObserved(SectionSpec{Prefixes: []string{"boot-entry"}})

	s.Start("boot-marshal")
	s.Stop("boot-marshal")
	s.Start("boot-entry")
	s.Stop("boot-entry")

	if logs.Len() != 2 {
		t.Errorf("filtered sections logged %d entries, want 2", logs.Len())
	}
}

func TestSections_Nil(t *testing.T) {
	var s *Sections
	s.Start("x")
	s.Stop("x")
	s.Sync()
	if s.Depth() != 0 {
		t.Error("nil Sections should report zero depth")
	}

	got, err := OpenSections("")
	if err != nil || got != nil {
		t.Errorf("OpenSections(\"\") = %v, %v", got, err)
	}
}
