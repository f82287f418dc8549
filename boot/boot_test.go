package boot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	wasmboot "github.com/wippyai/wasm-boot"
	booterrors "github.com/wippyai/wasm-boot/errors"
)

var nativePlatform = wasmboot.Platform{PointerSize: 4, WordSize: 4, HostPointerSize: 8, HostWordSize: 8}

// fakeRuntime records every call the sequencer makes.
type fakeRuntime struct {
	platform   wasmboot.Platform
	startupErr error
	failList   bool
	failString int // index of the argument whose conversion fails, -1 for none
	outcome    wasmboot.Outcome
	traceback  string

	startups   int
	invokes    int
	tracebacks int
	calls      []string
	strs       map[wasmboot.Handle][]byte
	lists      map[wasmboot.Handle][]wasmboot.Handle
	next       wasmboot.Handle
	invoked    []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		platform:   nativePlatform,
		failString: -1,
		strs:       make(map[wasmboot.Handle][]byte),
		lists:      make(map[wasmboot.Handle][]wasmboot.Handle),
	}
}

func (f *fakeRuntime) Platform() wasmboot.Platform {
	f.calls = append(f.calls, "platform")
	return f.platform
}

func (f *fakeRuntime) Startup(context.Context) error {
	f.calls = append(f.calls, "startup")
	f.startups++
	return f.startupErr
}

func (f *fakeRuntime) alloc() wasmboot.Handle {
	f.next++
	return f.next
}

func (f *fakeRuntime) NewString(_ context.Context, b []byte) (wasmboot.Handle, error) {
	f.calls = append(f.calls, "string")
	if f.failString >= 0 && len(f.strs) == f.failString {
		return 0, wasmboot.ErrOutOfMemory
	}
	h := f.alloc()
	f.strs[h] = append([]byte(nil), b...)
	return h, nil
}

func (f *fakeRuntime) NewList(_ context.Context, n int) (wasmboot.Handle, error) {
	f.calls = append(f.calls, "list")
	if f.failList {
		return 0, wasmboot.ErrOutOfMemory
	}
	h := f.alloc()
	f.lists[h] = make([]wasmboot.Handle, n)
	return h, nil
}

func (f *fakeRuntime) SetItem(_ context.Context, list wasmboot.Handle, i int, str wasmboot.Handle) error {
	f.calls = append(f.calls, "set")
	items, ok := f.lists[list]
	if !ok || i < 0 || i >= len(items) {
		return fmt.Errorf("bad slot %d in list %d", i, list)
	}
	items[i] = str
	return nil
}

func (f *fakeRuntime) Invoke(_ context.Context, list wasmboot.Handle) wasmboot.Outcome {
	f.calls = append(f.calls, "invoke")
	f.invokes++
	for _, h := range f.lists[list] {
		f.invoked = append(f.invoked, string(f.strs[h]))
	}
	return f.outcome
}

func (f *fakeRuntime) PrintTraceback(_ context.Context, w io.Writer) {
	f.calls = append(f.calls, "traceback")
	f.tracebacks++
	_, _ = io.WriteString(w, f.traceback)
}

type recordingTerminator struct {
	exits  []int
	aborts int
}

func (r *recordingTerminator) Exit(code int) { r.exits = append(r.exits, code) }
func (r *recordingTerminator) Abort()        { r.aborts++ }

func run(t *testing.T, rt *fakeRuntime, argv []string) (ExitStatus, string, *Bootstrap) {
	t.Helper()
	var diag bytes.Buffer
	b := New(Config{Runtime: rt, Diagnostics: &diag})
	st := b.Run(context.Background(), argv)
	if !b.Stage().Terminal() {
		t.Fatalf("sequence ended in non-terminal stage %s", b.Stage())
	}
	return st, diag.String(), b
}

func TestRun_ReturnsEntryCode(t *testing.T) {
	for _, code := range []int32{0, 17, 1, -1, 255} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			rt := newFakeRuntime()
			rt.outcome = wasmboot.Returned(code)

			st, diag, b := run(t, rt, []string{"prog", "a"})
			if st.Abort {
				t.Fatalf("unexpected abort, diagnostics %q", diag)
			}
			if st.Code != int(code) {
				t.Errorf("exit code = %d, want %d", st.Code, code)
			}
			if diag != "" {
				t.Errorf("normal path wrote diagnostics: %q", diag)
			}
			if b.Stage() != StageReturnExitCode {
				t.Errorf("stage = %s", b.Stage())
			}
		})
	}
}

func TestRun_StageOrder(t *testing.T) {
	rt := newFakeRuntime()
	run(t, rt, []string{"prog", "x", "y"})

	want := "platform startup list string set string set string set invoke"
	if got := strings.Join(rt.calls, " "); got != want {
		t.Errorf("calls = %q\nwant    %q", got, want)
	}
}

func TestRun_PlatformMismatch(t *testing.T) {
	tests := []struct {
		name     string
		platform wasmboot.Platform
	}{
		{"image widths", wasmboot.Platform{PointerSize: 8, WordSize: 4, HostPointerSize: 8, HostWordSize: 8}},
		{"host widths", wasmboot.Platform{PointerSize: 4, WordSize: 4, HostPointerSize: 8, HostWordSize: 4}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.platform = tc.platform

			st, diag, _ := run(t, rt, []string{"prog"})
			if !st.Abort {
				t.Fatalf("status = %s, want abort", st)
			}
			if rt.startups != 0 || rt.invokes != 0 {
				t.Errorf("startup=%d invoke=%d after platform mismatch", rt.startups, rt.invokes)
			}
			if !strings.HasPrefix(diag, "Fatal error during initialization: only support platforms where sizeof(void*) == sizeof(long)") {
				t.Errorf("diagnostics = %q", diag)
			}
		})
	}
}

func TestRun_RuntimeInitFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.startupErr = errors.New("cannot map the nursery")

	st, diag, _ := run(t, rt, []string{"prog", "a"})
	if !st.Abort {
		t.Fatalf("status = %s, want abort", st)
	}
	for _, c := range rt.calls {
		if c == "list" || c == "string" || c == "invoke" {
			t.Errorf("%s called after init failure", c)
		}
	}
	if diag != "Fatal error during initialization: cannot map the nursery\n" {
		t.Errorf("diagnostics = %q", diag)
	}
}

func TestRun_PreInit(t *testing.T) {
	t.Run("runs before startup", func(t *testing.T) {
		rt := newFakeRuntime()
		var order []string
		b := New(Config{
			Runtime:     rt,
			Diagnostics: io.Discard,
			PreInit: func() error {
				order = append(order, fmt.Sprintf("preinit startups=%d", rt.startups))
				return nil
			},
		})
		b.Run(context.Background(), nil)
		if len(order) != 1 || order[0] != "preinit startups=0" {
			t.Errorf("pre-init order = %v", order)
		}
	})

	t.Run("failure aborts", func(t *testing.T) {
		rt := newFakeRuntime()
		var diag bytes.Buffer
		b := New(Config{
			Runtime:     rt,
			Diagnostics: &diag,
			PreInit:     func() error { return errors.New("no console") },
		})
		st := b.Run(context.Background(), []string{"prog"})
		if !st.Abort {
			t.Fatal("pre-init failure should abort")
		}
		if rt.startups != 0 {
			t.Error("startup ran after pre-init failure")
		}
		if !strings.Contains(diag.String(), "no console") {
			t.Errorf("diagnostics = %q", diag.String())
		}
	})
}

func TestRun_AllocationFailure(t *testing.T) {
	tests := []struct {
		name       string
		failList   bool
		failString int
	}{
		{"list", true, -1},
		{"first string", false, 0},
		{"middle string", false, 2},
		{"last string", false, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.failList = tc.failList
			rt.failString = tc.failString

			st, diag, _ := run(t, rt, []string{"prog", "a", "b", "c"})
			if !st.Abort {
				t.Fatalf("status = %s, want abort", st)
			}
			if rt.invokes != 0 {
				t.Error("entry function called with a partial list")
			}
			if diag != "Fatal error during initialization: out of memory\n" {
				t.Errorf("diagnostics = %q", diag)
			}
		})
	}
}

func TestRun_UnhandledException(t *testing.T) {
	for _, code := range []int32{0, 17} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			rt := newFakeRuntime()
			rt.outcome = wasmboot.Outcome{Code: code, Exception: &wasmboot.Exception{Kind: "unhandled", Message: "KeyError"}}
			rt.traceback = "RPython traceback:\n  main.py:3\nFatal RPython error: KeyError\n"

			st, diag, b := run(t, rt, []string{"prog"})
			if !st.Abort {
				t.Fatalf("status = %s, want abort regardless of returned code", st)
			}
			if rt.tracebacks != 1 {
				t.Errorf("traceback printed %d times, want 1", rt.tracebacks)
			}
			if diag != rt.traceback {
				t.Errorf("diagnostics = %q, want runtime's traceback verbatim", diag)
			}
			if b.Stage() != StageAbort {
				t.Errorf("stage = %s", b.Stage())
			}
		})
	}
}

func TestRun_StartupOnce(t *testing.T) {
	outcomes := []wasmboot.Outcome{
		wasmboot.Returned(0),
		wasmboot.Returned(3),
		wasmboot.Raised("trap", "unreachable"),
	}
	argvs := [][]string{nil, {"prog"}, {"prog", "a", "b", "c", "d"}}

	for _, out := range outcomes {
		for _, argv := range argvs {
			rt := newFakeRuntime()
			rt.outcome = out
			run(t, rt, argv)
			if rt.startups != 1 {
				t.Errorf("argc=%d outcome=%+v: startup called %d times", len(argv), out, rt.startups)
			}
			if rt.invokes != 1 {
				t.Errorf("argc=%d outcome=%+v: entry called %d times", len(argv), out, rt.invokes)
			}
		}
	}
}

func TestRun_SecondRunAborts(t *testing.T) {
	rt := newFakeRuntime()
	var diag bytes.Buffer
	b := New(Config{Runtime: rt, Diagnostics: &diag})
	b.Run(context.Background(), []string{"prog"})
	st := b.Run(context.Background(), []string{"prog"})

	if !st.Abort {
		t.Error("second run should abort")
	}
	if rt.startups != 1 {
		t.Errorf("startup called %d times", rt.startups)
	}
}

func TestRun_NoRuntime(t *testing.T) {
	var diag bytes.Buffer
	st := New(Config{Diagnostics: &diag}).Run(context.Background(), []string{"prog"})
	if !st.Abort {
		t.Error("missing runtime should abort")
	}
	if !strings.HasPrefix(diag.String(), "Fatal error during initialization: ") {
		t.Errorf("diagnostics = %q", diag.String())
	}
}

func TestRun_ArgumentsReachEntry(t *testing.T) {
	rt := newFakeRuntime()
	argv := []string{"/usr/bin/prog", "", "héllo", "a b", "\x00\xff"}
	run(t, rt, argv)

	if strings.Join(rt.invoked, "|") != strings.Join(argv, "|") {
		t.Errorf("entry saw %q, want %q", rt.invoked, argv)
	}
}

func TestRun_LogsStages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	rt := newFakeRuntime()
	rt.outcome = wasmboot.Raised("trap", "unreachable")
	run(t, rt, []string{"prog"})

	var stages []string
	for _, e := range logs.FilterMessage("stage").All() {
		stages = append(stages, e.ContextMap()["to"].(string))
	}
	want := "platform-check runtime-init marshal invoke check-exception abort"
	if got := strings.Join(stages, " "); got != want {
		t.Errorf("stages = %q, want %q", got, want)
	}
	if logs.FilterMessage("unhandled exception escaped entry function").Len() != 1 {
		t.Error("exception not logged")
	}
}

func TestMain_Terminates(t *testing.T) {
	tests := []struct {
		name      string
		outcome   wasmboot.Outcome
		startup   error
		wantExits []int
		wantAbort int
	}{
		{"normal", wasmboot.Returned(17), nil, []int{17}, 0},
		{"exception", wasmboot.Raised("unhandled", ""), nil, nil, 1},
		{"init failure", wasmboot.Returned(0), errors.New("no"), nil, 1},
		{"entry returns abort status", wasmboot.Returned(ExitAbort), nil, []int{ExitAbort}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.outcome = tc.outcome
			rt.startupErr = tc.startup
			term := &recordingTerminator{}

			New(Config{Runtime: rt, Diagnostics: io.Discard, Terminator: term}).
				Main(context.Background(), []string{"prog"})

			if fmt.Sprint(term.exits) != fmt.Sprint(tc.wantExits) {
				t.Errorf("exits = %v, want %v", term.exits, tc.wantExits)
			}
			if term.aborts != tc.wantAbort {
				t.Errorf("aborts = %d, want %d", term.aborts, tc.wantAbort)
			}
		})
	}
}

func TestFatal(t *testing.T) {
	var diag bytes.Buffer
	term := &recordingTerminator{}
	Fatal(&diag, term, booterrors.InvalidImage("compile image", errors.New("invalid magic number")))

	if diag.String() != "Fatal error during initialization: compile image: invalid magic number\n" {
		t.Errorf("diagnostics = %q", diag.String())
	}
	if term.aborts != 1 || len(term.exits) != 0 {
		t.Errorf("aborts=%d exits=%v", term.aborts, term.exits)
	}
}

func TestExitStatus_String(t *testing.T) {
	if Exited(17).String() != "exit 17" {
		t.Errorf("got %q", Exited(17).String())
	}
	if Aborted().String() != "abort" {
		t.Errorf("got %q", Aborted().String())
	}
}

func TestStage_String(t *testing.T) {
	if StageCheckException.String() != "check-exception" {
		t.Errorf("got %q", StageCheckException.String())
	}
	if Stage(99).String() != "stage(99)" {
		t.Errorf("got %q", Stage(99).String())
	}
	for s := StageStart; s <= StageReturnExitCode; s++ {
		if s.Terminal() != (s == StageAbort || s == StageReturnExitCode) {
			t.Errorf("%s.Terminal() = %v", s, s.Terminal())
		}
	}
}
