package engine

import (
	"errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	wasmboot "github.com/wippyai/wasm-boot"
)

// TrapID enumerates the traps an image can raise.
type TrapID int

const (
	TrapUnknown TrapID = iota
	TrapUnreachable
	TrapCallStackExhausted
	TrapMemoryAccessOutOfBounds
	TrapIndirectCallIndexOutOfBounds
	TrapIndirectCallSignatureMismatch
	TrapIntegerDivideByZero
	TrapIntegerOverflow
	TrapInvalidConversion
)

func (id TrapID) String() string {
	switch id {
	case TrapUnreachable:
		return "unreachable"

	case TrapCallStackExhausted:
		return "call stack exhausted"

	case TrapMemoryAccessOutOfBounds:
		return "memory access out of bounds"

	case TrapIndirectCallIndexOutOfBounds:
		return "indirect call index out of bounds"

	case TrapIndirectCallSignatureMismatch:
		return "indirect call signature mismatch"

	case TrapIntegerDivideByZero:
		return "integer divide by zero"

	case TrapIntegerOverflow:
		return "integer overflow"

	case TrapInvalidConversion:
		return "invalid conversion to integer"

	default:
		return "unknown trap"
	}
}

const trapPrefix = "wasm error: "

// wazero's trap messages, first line after trapPrefix.
var trapMessages = map[string]TrapID{
	"unreachable":                   TrapUnreachable,
	"stack overflow":                TrapCallStackExhausted,
	"out of bounds memory access":   TrapMemoryAccessOutOfBounds,
	"invalid table access":          TrapIndirectCallIndexOutOfBounds,
	"indirect call type mismatch":   TrapIndirectCallSignatureMismatch,
	"integer divide by zero":        TrapIntegerDivideByZero,
	"integer overflow":              TrapIntegerOverflow,
	"invalid conversion to integer": TrapInvalidConversion,
}

// Exception kinds reported in wasmboot.Outcome.
const (
	KindUnhandled = "unhandled" // the runtime's own exception flag
	KindTrap      = "trap"      // the image trapped
	KindHost      = "host"      // the engine failed while calling the image
)

// callResult classifies an error returned by a call into the image.
type callResult struct {
	err    error
	exit   bool
	code   int32
	trap   TrapID
	kind   string
	detail string
}

func classifyCall(err error) callResult {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return callResult{exit: true, code: int32(exitErr.ExitCode())}
	}

	// Start functions are reported as "module[..] function[..] failed: wasm error: ...".
	msg := err.Error()
	if i := strings.Index(msg, trapPrefix); i >= 0 {
		first, _, _ := strings.Cut(msg[i+len(trapPrefix):], "\n")
		return callResult{err: err, kind: KindTrap, trap: trapMessages[first], detail: first}
	}

	first, _, _ := strings.Cut(msg, "\n")
	return callResult{err: err, kind: KindHost, detail: first}
}

// outcome converts r into the entry function's tagged result.
func (r callResult) outcome() wasmboot.Outcome {
	if r.exit {
		return wasmboot.Returned(r.code)
	}
	return wasmboot.Raised(r.kind, r.detail)
}
