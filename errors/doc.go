// Package errors provides structured error types for the launcher.
//
// Errors are categorized by Phase (which startup stage failed) and Kind (error category).
// All fatal startup outcomes share the one *Error type; no caller needs to tell
// a platform mismatch from an allocation failure beyond its Kind.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindSignatureMismatch).
//		Export("rt_alloc").
//		Detail("want (i32) -> i32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.PlatformMismatch("pointer width 8 differs from word width 4")
//	err := errors.OutOfMemory(cause)
//
// Message renders the text of the "Fatal error during initialization" line.
package errors
