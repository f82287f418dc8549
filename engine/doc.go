// Package engine implements wasmboot.Runtime on top of wazero.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine  - Owns the wazero runtime, compilation cache and host modules
//	Image   - A compiled program image with its flavor and declared widths
//	Runtime - One run of an image, returned by Image.NewRuntime
//
// # Image Flavors
//
// Native images link their own managed runtime and export it:
//
//	Export               Signature               Role
//	──────────────────────────────────────────────────────────────
//	memory               memory                  linear memory
//	rt_startup           () -> i32               0, or pointer to a NUL-terminated error
//	rt_alloc             (i32) -> i32            raw allocation, 0 on exhaustion
//	rt_str_new           (i32, i32) -> i32       string from (ptr, len)
//	rt_list_new          (i32) -> i32            list with n empty slots
//	rt_list_set          (i32, i32, i32) -> ()   list[i] = str
//	rt_exc_occurred      () -> i32               nonzero while an exception is pending
//	rt_print_traceback   () -> ()                describe the pending exception
//	entry_point          (i32) -> i32            program entry, name configurable
//
// They may import imageboot.diag_write(ptr, len), which writes to the
// diagnostic stream, and any WASI preview1 function.
//
// WASI images are plain commands exporting _start. Their arguments are kept
// host-side until the entry call, where they become the WASI argv. The exit
// status comes from proc_exit; returning from _start means 0.
//
// # Widths
//
// Pointers are 4 bytes under memory32. An optional custom section
// imageboot.abi ([version=1][word width]) records the word width the image
// was compiled for; without it the word width equals the pointer width.
//
// # Traps
//
// A trap in the entry function is reported as an unhandled exception of kind
// "trap". Its traceback is wazero's wasm stack trace.
package engine
