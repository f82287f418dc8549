package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-boot/internal/wasmtest"
)

type recordingTerminator struct {
	exits  []int
	aborts int
}

func (r *recordingTerminator) Exit(code int) { r.exits = append(r.exits, code) }
func (r *recordingTerminator) Abort()        { r.aborts++ }

type result struct {
	status int
	term   *recordingTerminator
	stdout string
	stderr string
}

func execute(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	term := &recordingTerminator{}
	a := &app{
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &stderr,
		term:   term,
	}
	status := a.execute(args)
	return result{status: status, term: term, stdout: stdout.String(), stderr: stderr.String()}
}

func writeImage(t *testing.T, wasm []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.wasm")
	if err := os.WriteFile(path, wasm, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecute_Run(t *testing.T) {
	code17 := writeImage(t, wasmtest.NativeImage(wasmtest.NativeOptions{Code: 17}))
	argc := writeImage(t, wasmtest.NativeImage(wasmtest.NativeOptions{Behavior: wasmtest.Argc}))
	wasiArgc := writeImage(t, wasmtest.WASIImage(wasmtest.WASIOptions{Behavior: wasmtest.Argc}))
	mainEntry := writeImage(t, wasmtest.NativeImage(wasmtest.NativeOptions{EntryName: "main", Code: 4}))

	tests := []struct {
		name string
		args []string
		want []int
	}{
		{"default command", []string{code17}, []int{17}},
		{"run command", []string{"run", code17}, []int{17}},
		{"program flags pass through", []string{argc, "--verbose", "-x", "file"}, []int{4}},
		{"launcher flags before image", []string{"--argv0", "prog", "--env", "A=1", argc, "one"}, []int{2}},
		{"wasi argv", []string{wasiArgc, "a", "b"}, []int{3}},
		{"entry override", []string{"--entry", "main", mainEntry}, []int{4}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, tc.args...)
			if res.status != 0 {
				t.Fatalf("status = %d, stderr %q", res.status, res.stderr)
			}
			if fmt.Sprint(res.term.exits) != fmt.Sprint(tc.want) || res.term.aborts != 0 {
				t.Errorf("exits = %v aborts = %d, want %v (stderr %q)", res.term.exits, res.term.aborts, tc.want, res.stderr)
			}
		})
	}
}

func TestExecute_EntryFromEnvAndConfig(t *testing.T) {
	img := writeImage(t, wasmtest.NativeImage(wasmtest.NativeOptions{EntryName: "main", Code: 8}))

	t.Run("env", func(t *testing.T) {
		t.Setenv("IMGBOOT_ENTRY", "main")
		res := execute(t, img)
		if fmt.Sprint(res.term.exits) != "[8]" {
			t.Errorf("exits = %v, stderr %q", res.term.exits, res.stderr)
		}
	})

	t.Run("config file", func(t *testing.T) {
		cfg := filepath.Join(t.TempDir(), "imgboot.yaml")
		if err := os.WriteFile(cfg, []byte("entry: main\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		res := execute(t, "--config", cfg, img)
		if fmt.Sprint(res.term.exits) != "[8]" {
			t.Errorf("exits = %v, stderr %q", res.term.exits, res.stderr)
		}
	})
}

func TestExecute_Fatal(t *testing.T) {
	missingEntry := writeImage(t, wasmtest.NativeImage(wasmtest.NativeOptions{EntryName: "main"}))
	startupFails := writeImage(t, wasmtest.NativeImage(wasmtest.NativeOptions{StartupMessage: "no heap"}))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing image", []string{filepath.Join(t.TempDir(), "nope.wasm")}, "Fatal error during initialization: cannot read image: "},
		{"bad env", []string{"--env", "NOEQ", missingEntry}, `Fatal error during initialization: env "NOEQ" is not KEY=VALUE`},
		{"missing entry", []string{missingEntry}, `Fatal error during initialization: image does not export "entry_point"`},
		{"startup failure", []string{startupFails}, "Fatal error during initialization: no heap\n"},
		{"bad log level", []string{"--log-level", "loud", startupFails}, "Fatal error during initialization: log level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, tc.args...)
			if res.term.aborts != 1 || len(res.term.exits) != 0 {
				t.Errorf("aborts = %d exits = %v, want one abort", res.term.aborts, res.term.exits)
			}
			if !strings.HasPrefix(res.stderr, tc.want) {
				t.Errorf("stderr = %q, want prefix %q", res.stderr, tc.want)
			}
		})
	}
}

func TestExecute_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no image", nil},
		{"run without image", []string{"run"}},
		{"unknown flag", []string{"--no-such-flag", "app.wasm"}},
		{"inspect without image", []string{"inspect"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, tc.args...)
			if res.status != exitUsage {
				t.Errorf("status = %d, want %d", res.status, exitUsage)
			}
			if len(res.term.exits) != 0 || res.term.aborts != 0 {
				t.Error("usage errors must not reach the terminator")
			}
		})
	}
}

func TestExecute_Inspect(t *testing.T) {
	img := writeImage(t, wasmtest.NativeImage(wasmtest.NativeOptions{WordSize: 8}))

	res := execute(t, "inspect", img)
	if res.status != 0 {
		t.Fatalf("status = %d, stderr %q", res.status, res.stderr)
	}
	for _, want := range []string{"native", "rt_startup", "() -> i32", "imageboot.diag_write", "imageboot.abi", "sizeof(void*) == sizeof(long)"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("report missing %q:\n%s", want, res.stdout)
		}
	}

	res = execute(t, "inspect", filepath.Join(t.TempDir(), "nope.wasm"))
	if res.status != exitFailure {
		t.Errorf("status = %d, want %d", res.status, exitFailure)
	}
}
