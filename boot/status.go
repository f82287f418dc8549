package boot

import (
	"fmt"
	"os"

	"github.com/wippyai/wasm-boot/internal/platform"
)

// ExitAbort is the process status reported for abnormal termination.
// An entry function that returns the same code exits with the same status,
// so the parent process cannot tell the two apart.
const ExitAbort = platform.ExitAbort

// ExitStatus is the single terminal result of a run.
// Code is meaningful only when Abort is false.
type ExitStatus struct {
	Code  int
	Abort bool
}

// Exited returns the status of a normal exit with code.
func Exited(code int) ExitStatus {
	return ExitStatus{Code: code}
}

// Aborted returns the status of abnormal termination.
func Aborted() ExitStatus {
	return ExitStatus{Abort: true}
}

func (s ExitStatus) String() string {
	if s.Abort {
		return "abort"
	}
	return fmt.Sprintf("exit %d", s.Code)
}

// Stage is a state of the startup sequence.
type Stage int

const (
	StageStart Stage = iota
	StagePlatformCheck
	StageRuntimeInit
	StageMarshal
	StageInvoke
	StageCheckException
	StageAbort
	StageReturnExitCode
)

var stageNames = [...]string{
	StageStart:          "start",
	StagePlatformCheck:  "platform-check",
	StageRuntimeInit:    "runtime-init",
	StageMarshal:        "marshal",
	StageInvoke:         "invoke",
	StageCheckException: "check-exception",
	StageAbort:          "abort",
	StageReturnExitCode: "return-exit-code",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageAbort || s == StageReturnExitCode
}

// Terminator ends the process.
type Terminator interface {
	// Exit ends the process normally with code.
	Exit(code int)
	// Abort ends the process abnormally, skipping all cleanup.
	Abort()
}

type processTerminator struct{}

func (processTerminator) Exit(code int) {
	os.Exit(code)
}

// Abort does not unwind: deferred functions and finalizers are skipped.
func (processTerminator) Abort() {
	os.Exit(ExitAbort)
}

// ProcessTerminator ends the current OS process.
var ProcessTerminator Terminator = processTerminator{}

// Terminate hands st to t.
func Terminate(t Terminator, st ExitStatus) {
	if st.Abort {
		t.Abort()
		return
	}
	t.Exit(st.Code)
}
