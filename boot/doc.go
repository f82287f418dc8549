// Package boot implements the startup sequencer that bridges a compiled
// program image to the host process.
//
// A Bootstrap runs five stages strictly in order:
//
//	Platform Guard       image and host pointer widths equal their word widths
//	Runtime Initializer  platform pre-init hook, then Runtime.Startup once
//	Argument Marshaller  argv becomes a runtime-native list of strings
//	Entry Invoker        Runtime.Invoke, unbounded, no timeout
//	Exception Bridge     traceback and abort, or the entry's exit code
//
// Every run ends in exactly one ExitStatus. Failures before the entry
// function print "Fatal error during initialization: <message>" and abort
// without any cleanup; Main hands the status to a Terminator and never
// returns on a real process.
package boot
