package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/errors"
)

// maxStartupMessage bounds the NUL-terminated message read from rt_startup.
const maxStartupMessage = 4096

// nativeRuntime drives an image that links its own managed runtime.
// It is NOT thread-safe; the launcher uses it from a single goroutine.
type nativeRuntime struct {
	img    *Image
	opts   Options
	entry  string
	mod    api.Module
	fns    map[string]api.Function
	failed *callResult // trap or host failure pending a traceback
	closed bool        // the image exited through proc_exit
	traced bool
}

func newNativeRuntime(img *Image, entry string, opts Options) *nativeRuntime {
	return &nativeRuntime{img: img, opts: opts, entry: entry}
}

func (r *nativeRuntime) Platform() wasmboot.Platform {
	return r.img.Platform()
}

func (r *nativeRuntime) ctx(ctx context.Context) context.Context {
	if r.opts.Stderr != nil {
		return withDiag(ctx, r.opts.Stderr)
	}
	return ctx
}

func (r *nativeRuntime) Startup(ctx context.Context) error {
	if r.mod != nil {
		return errors.RuntimeInit("runtime already started", nil)
	}
	if err := checkImports(r.img.compiled); err != nil {
		return errors.RuntimeInit(err.Error(), err)
	}
	if err := r.img.engine.initHosts(ctx); err != nil {
		return errors.RuntimeInit(err.Error(), err)
	}

	cfg := r.img.moduleConfig(r.opts).WithStartFunctions()
	mod, err := r.img.engine.instantiate(r.ctx(ctx), r.img.compiled, cfg)
	if err != nil {
		return errors.RuntimeInit(fmt.Sprintf("instantiate image: %v", err), err)
	}
	r.mod = mod

	r.fns = make(map[string]api.Function, len(nativeABI)+1)
	for _, e := range nativeABI {
		r.fns[e.name] = mod.ExportedFunction(e.name)
	}
	r.fns[r.entry] = mod.ExportedFunction(r.entry)

	res, err := r.fns[ExportStartup].Call(r.ctx(ctx))
	if err != nil {
		return errors.RuntimeInit(fmt.Sprintf("%s failed: %s", ExportStartup, classifyCall(err).detail), err)
	}
	if ptr := api.DecodeU32(res[0]); ptr != 0 {
		msg := r.readCString(ptr)
		Logger().Debug("runtime startup failed", zap.Uint32("message_ptr", ptr), zap.String("message", msg))
		return errors.RuntimeInit(msg, fmt.Errorf("%s returned %#x", ExportStartup, ptr))
	}
	return nil
}

// readCString reads a NUL-terminated string from guest memory.
func (r *nativeRuntime) readCString(ptr uint32) string {
	mem := r.mod.Memory()
	var buf []byte
	for i := uint32(0); i < maxStartupMessage; i++ {
		b, ok := mem.ReadByte(ptr + i)
		if !ok || b == 0 {
			break
		}
		buf = append(buf, b)
	}
	if len(buf) == 0 {
		return "runtime startup failed"
	}
	return string(buf)
}

// call invokes an ABI function and converts a raised exception into ErrOutOfMemory.
func (r *nativeRuntime) call(ctx context.Context, name string, params ...uint64) (uint32, error) {
	if r.mod == nil {
		return 0, errors.RuntimeInit("runtime not started", nil)
	}
	res, err := r.fns[name].Call(r.ctx(ctx), params...)
	if err != nil {
		return 0, fmt.Errorf("%s: %s", name, classifyCall(err).detail)
	}
	raised, err := r.raised(ctx)
	if err != nil {
		return 0, err
	}
	if raised {
		return 0, fmt.Errorf("%s raised: %w", name, wasmboot.ErrOutOfMemory)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return api.DecodeU32(res[0]), nil
}

func (r *nativeRuntime) raised(ctx context.Context) (bool, error) {
	res, err := r.fns[ExportExcOccurred].Call(r.ctx(ctx))
	if err != nil {
		return false, fmt.Errorf("%s: %s", ExportExcOccurred, classifyCall(err).detail)
	}
	return api.DecodeU32(res[0]) != 0, nil
}

func (r *nativeRuntime) NewString(ctx context.Context, b []byte) (wasmboot.Handle, error) {
	var ptr uint32
	if len(b) > 0 {
		p, err := r.call(ctx, ExportAlloc, api.EncodeU32(uint32(len(b))))
		if err != nil {
			return 0, err
		}
		if p == 0 {
			return 0, fmt.Errorf("%s(%d) returned null: %w", ExportAlloc, len(b), wasmboot.ErrOutOfMemory)
		}
		if !r.mod.Memory().Write(p, b) {
			return 0, fmt.Errorf("%s(%d) returned %#x outside memory", ExportAlloc, len(b), p)
		}
		ptr = p
	}

	s, err := r.call(ctx, ExportStrNew, api.EncodeU32(ptr), api.EncodeU32(uint32(len(b))))
	if err != nil {
		return 0, err
	}
	if s == 0 {
		return 0, fmt.Errorf("%s returned null: %w", ExportStrNew, wasmboot.ErrOutOfMemory)
	}
	return wasmboot.Handle(s), nil
}

func (r *nativeRuntime) NewList(ctx context.Context, n int) (wasmboot.Handle, error) {
	if n < 0 || uint64(n) > uint64(^uint32(0)) {
		return 0, fmt.Errorf("list length %d out of range", n)
	}
	l, err := r.call(ctx, ExportListNew, api.EncodeU32(uint32(n)))
	if err != nil {
		return 0, err
	}
	if l == 0 {
		return 0, fmt.Errorf("%s(%d) returned null: %w", ExportListNew, n, wasmboot.ErrOutOfMemory)
	}
	return wasmboot.Handle(l), nil
}

func (r *nativeRuntime) SetItem(ctx context.Context, list wasmboot.Handle, i int, str wasmboot.Handle) error {
	_, err := r.call(ctx, ExportListSet, api.EncodeU32(uint32(list)), api.EncodeU32(uint32(i)), api.EncodeU32(uint32(str)))
	return err
}

func (r *nativeRuntime) Invoke(ctx context.Context, list wasmboot.Handle) wasmboot.Outcome {
	if r.mod == nil {
		return wasmboot.Raised(KindHost, "runtime not started")
	}

	res, err := r.fns[r.entry].Call(r.ctx(ctx), api.EncodeU32(uint32(list)))
	if err != nil {
		cr := classifyCall(err)
		if cr.exit {
			r.closed = true
		} else {
			r.failed = &cr
		}
		Logger().Debug("entry function did not return", zap.String("entry", r.entry), zap.Error(err))
		return cr.outcome()
	}
	code := api.DecodeI32(res[0])

	raised, err := r.raised(ctx)
	if err != nil {
		cr := callResult{err: err, kind: KindHost, detail: err.Error()}
		r.failed = &cr
		return cr.outcome()
	}
	if raised {
		Logger().Debug("exception flag set after entry", zap.Int32("discarded_code", code))
		return wasmboot.Raised(KindUnhandled, "")
	}
	return wasmboot.Returned(code)
}

func (r *nativeRuntime) PrintTraceback(ctx context.Context, w io.Writer) {
	if r.traced {
		return
	}
	r.traced = true

	if r.failed != nil {
		writeFailure(w, r.failed)
		return
	}
	if r.mod == nil || r.closed {
		return
	}
	if _, err := r.fns[ExportPrintTraceback].Call(withDiag(ctx, w)); err != nil {
		cr := classifyCall(err)
		fmt.Fprintf(w, "%s failed: %s\n", ExportPrintTraceback, cr.detail)
	}
}

// writeFailure prints a trap or host failure, including wazero's wasm stack trace.
func writeFailure(w io.Writer, cr *callResult) {
	if cr.kind == KindTrap {
		fmt.Fprintf(w, "Fatal error: unhandled trap: %s\n", cr.trap)
	} else {
		fmt.Fprintf(w, "Fatal error: %s\n", cr.detail)
	}
	if cr.err != nil {
		fmt.Fprintf(w, "%v\n", cr.err)
	}
}
