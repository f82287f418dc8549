package engine

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/errors"
)

// wasiRuntime runs a WASI command. The image has no allocator of its own,
// so arguments are held host-side and handed over as argv at instantiation.
type wasiRuntime struct {
	img     *Image
	opts    Options
	handles *handleTable
	started bool
	failed  *callResult
	traced  bool
}

func newWASIRuntime(img *Image, opts Options) *wasiRuntime {
	return &wasiRuntime{
		img:     img,
		opts:    opts,
		handles: newHandleTable(opts.ArgBytesLimit),
	}
}

func (r *wasiRuntime) Platform() wasmboot.Platform {
	return r.img.Platform()
}

func (r *wasiRuntime) Startup(ctx context.Context) error {
	if r.started {
		return errors.RuntimeInit("runtime already started", nil)
	}
	if err := checkImports(r.img.compiled); err != nil {
		return errors.RuntimeInit(err.Error(), err)
	}
	if err := r.img.engine.initHosts(ctx); err != nil {
		return errors.RuntimeInit(err.Error(), err)
	}
	r.started = true
	return nil
}

func (r *wasiRuntime) NewString(_ context.Context, b []byte) (wasmboot.Handle, error) {
	return r.handles.newString(b)
}

func (r *wasiRuntime) NewList(_ context.Context, n int) (wasmboot.Handle, error) {
	return r.handles.newList(n)
}

func (r *wasiRuntime) SetItem(_ context.Context, list wasmboot.Handle, i int, str wasmboot.Handle) error {
	return r.handles.setItem(list, i, str)
}

func (r *wasiRuntime) Invoke(ctx context.Context, list wasmboot.Handle) wasmboot.Outcome {
	if !r.started {
		return wasmboot.Raised(KindHost, "runtime not started")
	}

	args, err := r.handles.take(list)
	if err != nil {
		cr := callResult{err: err, kind: KindHost, detail: fmt.Sprintf("argument list: %v", err)}
		r.failed = &cr
		return cr.outcome()
	}

	cfg := r.img.moduleConfig(r.opts).
		WithArgs(args...).
		WithStartFunctions(ExportStart)

	if r.opts.Stderr != nil {
		ctx = withDiag(ctx, r.opts.Stderr)
	}
	mod, err := r.img.engine.instantiate(ctx, r.img.compiled, cfg)
	if err == nil {
		// _start returned, or exited with status 0 and took the module with it.
		if mod != nil {
			_ = mod.Close(ctx)
		}
		return wasmboot.Returned(0)
	}

	cr := classifyCall(err)
	if !cr.exit {
		r.failed = &cr
		Logger().Debug("command did not exit cleanly", zap.Int("argc", len(args)), zap.Error(err))
	}
	return cr.outcome()
}

func (r *wasiRuntime) PrintTraceback(_ context.Context, w io.Writer) {
	if r.traced || r.failed == nil {
		return
	}
	r.traced = true
	writeFailure(w, r.failed)
}
