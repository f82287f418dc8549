package engine

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/internal/platform"
)

// Flavor is the calling convention an image follows.
type Flavor int

const (
	// FlavorNative images export the runtime ABI (rt_startup, rt_alloc, ...).
	FlavorNative Flavor = iota + 1
	// FlavorWASI images are WASI commands exporting _start.
	FlavorWASI
)

func (f Flavor) String() string {
	switch f {
	case FlavorNative:
		return "native"
	case FlavorWASI:
		return "wasi"
	default:
		return "unknown"
	}
}

// Export describes one export of an image.
type Export struct {
	Name    string
	Kind    string // "func" or "memory"
	Params  []string
	Results []string
}

// Signature renders the export's type.
func (e Export) Signature() string {
	if e.Kind != "func" {
		return e.Kind
	}
	return formatNames(e.Params, e.Results)
}

// Import describes one function import of an image.
type Import struct {
	Module  string
	Name    string
	Params  []string
	Results []string
	Known   bool
}

// Signature renders the import's type.
func (i Import) Signature() string {
	return formatNames(i.Params, i.Results)
}

// Mount maps a host directory into the guest file system.
type Mount struct {
	Host  string
	Guest string
}

// Options configures one runtime of an image.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is passed to the image as KEY=VALUE pairs.
	Env map[string]string

	// Mounts exposes host directories to the image.
	Mounts []Mount

	// Entry overrides DefaultEntry for native images.
	Entry string

	// ArgBytesLimit bounds host-side argument storage for WASI images.
	// 0 means DefaultArgBytesLimit.
	ArgBytesLimit int
}

// Image is a compiled program image.
type Image struct {
	engine        *Engine
	compiled      wazero.CompiledModule
	flavor        Flavor
	wordSize      int
	hasABISection bool
}

// Flavor returns the image's calling convention.
func (img *Image) Flavor() Flavor {
	return img.flavor
}

// HasABISection reports whether the image declared its widths explicitly.
func (img *Image) HasABISection() bool {
	return img.hasABISection
}

// Platform returns the widths the image was compiled for next to the host's.
func (img *Image) Platform() wasmboot.Platform {
	return platform.WithHost(wasmboot.Platform{
		PointerSize: pointerSize,
		WordSize:    img.wordSize,
	})
}

// Exports lists the image's exports sorted by name.
func (img *Image) Exports() []Export {
	var out []Export
	for name, def := range img.compiled.ExportedFunctions() {
		out = append(out, Export{
			Name:    name,
			Kind:    "func",
			Params:  typeNames(def.ParamTypes()),
			Results: typeNames(def.ResultTypes()),
		})
	}
	for name := range img.compiled.ExportedMemories() {
		out = append(out, Export{Name: name, Kind: "memory"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Imports lists the image's function imports in declaration order.
func (img *Image) Imports() []Import {
	defs := img.compiled.ImportedFunctions()
	out := make([]Import, 0, len(defs))
	for _, def := range defs {
		mod, name, _ := def.Import()
		out = append(out, Import{
			Module:  mod,
			Name:    name,
			Params:  typeNames(def.ParamTypes()),
			Results: typeNames(def.ResultTypes()),
			Known:   knownImports[mod],
		})
	}
	return out
}

// Close releases the compiled image.
func (img *Image) Close(ctx context.Context) error {
	return img.compiled.Close(ctx)
}

// NewRuntime prepares a runtime for one run of the image.
// Nothing is instantiated until Startup.
func (img *Image) NewRuntime(opts Options) (wasmboot.Runtime, error) {
	switch img.flavor {
	case FlavorNative:
		entry := opts.Entry
		if entry == "" {
			entry = DefaultEntry
		}
		if err := checkExport(img.compiled.ExportedFunctions(), entry, sigEntry); err != nil {
			return nil, err
		}
		return newNativeRuntime(img, entry, opts), nil
	case FlavorWASI:
		return newWASIRuntime(img, opts), nil
	default:
		return nil, errors.InvalidImage("image flavor not recognized", nil)
	}
}

// moduleConfig builds the wazero configuration shared by both flavors.
func (img *Image) moduleConfig(opts Options) wazero.ModuleConfig {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(stdout).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	if opts.Stdin != nil {
		cfg = cfg.WithStdin(opts.Stdin)
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cfg = cfg.WithEnv(k, opts.Env[k])
	}

	if len(opts.Mounts) > 0 {
		fs := wazero.NewFSConfig()
		for _, m := range opts.Mounts {
			fs = fs.WithDirMount(m.Host, m.Guest)
		}
		cfg = cfg.WithFSConfig(fs)
	}

	return cfg
}

func typeNames(ts []api.ValueType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = api.ValueTypeName(t)
	}
	return out
}

func formatNames(params, results []string) string {
	s := "("
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		s += p
	}
	s += ") -> "
	switch len(results) {
	case 0:
		s += "()"
	case 1:
		s += results[0]
	default:
		s += "("
		for i, r := range results {
			if i > 0 {
				s += ", "
			}
			s += r
		}
		s += ")"
	}
	return s
}
