// Package wasmboot launches ahead-of-time compiled WebAssembly program images
// as native processes.
//
// A program image is a core WebAssembly module compiled by wazero. Its native
// code can be kept in a compilation cache between runs. The image links a small
// managed runtime that owns its strings, lists and exception state; the launcher
// talks to that runtime only through the Runtime interface.
//
// # Architecture Overview
//
//	wasmboot/            Root package with the Runtime interface and Outcome
//	├── boot/            Startup sequencer: guard, init, marshal, invoke, bridge
//	├── engine/          wazero-backed Runtime for native and WASI images
//	├── errors/          Structured startup errors
//	├── internal/        Platform facts, logging, console rendering, test images
//	└── cmd/imgboot/     The process entry point
//
// # Startup Sequence
//
// The sequencer runs five stages in order and produces exactly one exit status:
//
//	Start → PlatformCheck → RuntimeInit → Marshal → Invoke → CheckException
//
// Any failure before Invoke prints
//
//	Fatal error during initialization: <message>
//
// and aborts. An exception that escapes the entry function is printed by the
// runtime's traceback printer and also aborts. Otherwise the entry function's
// integer result becomes the process exit code verbatim.
//
// # Quick Start
//
//	eng, err := engine.New(ctx, &engine.Config{CacheDir: dir})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	img, err := eng.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt, err := img.NewRuntime(engine.Options{Stdout: os.Stdout, Stderr: os.Stderr})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	boot.New(boot.Config{Runtime: rt}).Main(ctx, os.Args)
package wasmboot
