package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates which stage of startup produced the error
type Phase string

const (
	PhaseConfig   Phase = "config"   // command line and config files
	PhaseLoad     Phase = "load"     // image read and compile
	PhasePlatform Phase = "platform" // platform guard
	PhaseInit     Phase = "init"     // runtime startup routine
	PhaseMarshal  Phase = "marshal"  // argument conversion
	PhaseInvoke   Phase = "invoke"   // entry function call
)

// Kind categorizes the error
type Kind string

const (
	KindPlatformMismatch   Kind = "platform_mismatch"
	KindRuntimeInit        Kind = "runtime_init"
	KindAllocation         Kind = "allocation"
	KindUnhandledException Kind = "unhandled_exception"
	KindInvalidImage       Kind = "invalid_image"
	KindMissingExport      Kind = "missing_export"
	KindSignatureMismatch  Kind = "signature_mismatch"
	KindInvalidConfig      Kind = "invalid_config"
)

// Error is the structured error type used by the launcher.
// Every fatal startup outcome is an *Error; Detail is the message shown to the user.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Export string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Export != "" {
		b.WriteString(" at export ")
		b.WriteString(e.Export)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Export sets the export name involved
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// PlatformMismatch creates the platform guard failure
func PlatformMismatch(detail string) *Error {
	return &Error{
		Phase:  PhasePlatform,
		Kind:   KindPlatformMismatch,
		Detail: detail,
	}
}

// RuntimeInit creates a runtime startup failure carrying the runtime's message
func RuntimeInit(msg string, cause error) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindRuntimeInit,
		Detail: msg,
		Cause:  cause,
	}
}

// OutOfMemory creates an allocation failure raised while building arguments
func OutOfMemory(cause error) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindAllocation,
		Detail: "out of memory",
		Cause:  cause,
	}
}

// MissingExport creates an error for an image lacking a required export
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Export: name,
		Detail: fmt.Sprintf("image does not export %q", name),
	}
}

// SignatureMismatch creates an error for an export with an unexpected signature
func SignatureMismatch(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSignatureMismatch,
		Export: name,
		Detail: fmt.Sprintf("export %q has signature %s, want %s", name, got, want),
	}
}

// InvalidImage creates an image loading error
func InvalidImage(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidImage,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidConfig creates a configuration error
func InvalidConfig(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidConfig,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Message returns the text printed after "Fatal error during initialization: ".
// For an *Error this is its Detail, followed by the cause when it adds information.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	msg := e.Detail
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil && e.Kind != KindAllocation && e.Kind != KindRuntimeInit {
		msg += ": " + e.Cause.Error()
	}
	return msg
}
