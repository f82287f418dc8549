package wasmboot

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrOutOfMemory is wrapped by Runtime constructors when the managed runtime
// raises its out-of-memory exception.
var ErrOutOfMemory = errors.New("out of memory")

// Handle is an opaque reference to a runtime-native value.
// Zero is never a valid handle.
type Handle uint32

// Platform describes the widths a program image was compiled for next to the
// widths of the host running it. All sizes are in bytes.
type Platform struct {
	PointerSize     int
	WordSize        int
	HostPointerSize int
	HostWordSize    int
}

// Exception describes an unhandled exception that escaped the entry function.
type Exception struct {
	Kind    string
	Message string
}

func (e *Exception) String() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Outcome is the result of calling the entry function.
// Code is meaningful only when Exception is nil.
type Outcome struct {
	Exception *Exception
	Code      int32
}

// Returned creates the outcome of an entry function that returned normally.
func Returned(code int32) Outcome {
	return Outcome{Code: code}
}

// Raised creates the outcome of an entry function that left an exception behind.
func Raised(kind, message string) Outcome {
	return Outcome{Exception: &Exception{Kind: kind, Message: message}}
}

// Runtime is the managed runtime linked into a compiled program image.
type Runtime interface {
	// Platform reports the widths the image depends on.
	Platform() Platform

	// Startup runs the runtime's one-time initialization.
	// A non-nil error carries the diagnostic message.
	Startup(ctx context.Context) error

	// NewString copies b into a new runtime-native string.
	NewString(ctx context.Context, b []byte) (Handle, error)

	// NewList creates a fixed-length list of n empty slots.
	NewList(ctx context.Context, n int) (Handle, error)

	// SetItem moves str into slot i of list.
	SetItem(ctx context.Context, list Handle, i int, str Handle) error

	// Invoke calls the entry function, handing it ownership of list.
	Invoke(ctx context.Context, list Handle) Outcome

	// PrintTraceback describes the pending unhandled exception on w.
	PrintTraceback(ctx context.Context, w io.Writer)
}
