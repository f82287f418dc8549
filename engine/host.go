package engine

import (
	"context"
	"io"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	ebadf     = 8          // POSIX EBADF error code
	invalidFD = 0xFFFFFFFF // -1 as uint32
)

// instantiateWASI instantiates WASI preview1 together with the adapter
// functions some toolchains import from the same module.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(WASIModule)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, _ []uint64) {
		}), nil, nil).
		Export("reset_adapter_state")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = ebadf
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("adapter_close_badfd")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = invalidFD
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("adapter_open_badfd")

	return builder.Instantiate(ctx)
}

type diagKey struct{}

// withDiag routes imageboot.diag_write calls made under ctx to w.
func withDiag(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, diagKey{}, w)
}

func diagWriter(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(diagKey{}).(io.Writer); ok && w != nil {
		return w
	}
	return os.Stderr
}

// instantiateHost instantiates the imageboot module. Its only function,
// diag_write(ptr, len), copies guest bytes to the diagnostic stream.
func instantiateHost(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	return r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, n := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
			mem := mod.Memory()
			if mem == nil {
				return
			}
			b, ok := mem.Read(ptr, n)
			if !ok {
				Logger().Sugar().Warnf("diag_write: range [%d, +%d) outside memory", ptr, n)
				return
			}
			_, _ = diagWriter(ctx).Write(b)
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("diag_write").
		Instantiate(ctx)
}
