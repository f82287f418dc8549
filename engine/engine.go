package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
)

// Engine compiles program images and hosts their instances.
type Engine struct {
	runtime    wazero.Runtime
	cache      wazero.CompilationCache
	hostInitMu sync.Mutex
	hostDone   atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// CacheDir persists compiled native code between runs.
	// Empty means images are compiled on every start.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCustomSections(true)

	e := &Engine{}
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CacheDir != "" {
			cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
			if err != nil {
				return nil, errors.InvalidConfig(fmt.Sprintf("compilation cache %s", cfg.CacheDir), err)
			}
			e.cache = cache
			runtimeCfg = runtimeCfg.WithCompilationCache(cache)
		}
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return e, nil
}

// Close releases every instance and compiled image.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// Load compiles wasmBytes and classifies its flavor.
func (e *Engine) Load(ctx context.Context, wasmBytes []byte) (*Image, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.InvalidImage("compile image", err)
	}

	img := &Image{
		engine:   e,
		compiled: compiled,
		wordSize: pointerSize,
	}

	for _, cs := range compiled.CustomSections() {
		if cs.Name() != ABISection {
			continue
		}
		ws, err := parseABISection(cs.Data())
		if err != nil {
			_ = compiled.Close(ctx)
			return nil, err
		}
		img.wordSize = ws
		img.hasABISection = true
	}

	if img.flavor, err = classify(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	Logger().Debug("image loaded",
		zap.Stringer("flavor", img.flavor),
		zap.Int("word_size", img.wordSize),
		zap.Int("exports", len(compiled.ExportedFunctions())),
		zap.Int("imports", len(compiled.ImportedFunctions())))

	return img, nil
}

func classify(compiled wazero.CompiledModule) (Flavor, error) {
	exports := compiled.ExportedFunctions()

	if _, ok := exports[ExportStartup]; ok {
		for _, e := range nativeABI {
			if err := checkExport(exports, e.name, e.sig); err != nil {
				return 0, err
			}
		}
		if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
			return 0, errors.MissingExport(ExportMemory)
		}
		return FlavorNative, nil
	}

	if _, ok := exports[ExportStart]; ok {
		if err := checkExport(exports, ExportStart, sigStart); err != nil {
			return 0, err
		}
		return FlavorWASI, nil
	}

	return 0, errors.New(errors.PhaseLoad, errors.KindMissingExport).
		Export(ExportStartup).
		Detail("image exports neither the runtime ABI (%s) nor a WASI command entry (%s)", ExportStartup, ExportStart).
		Build()
}

// knownImports are the import modules the engine can satisfy.
var knownImports = map[string]bool{
	HostModule: true,
	WASIModule: true,
}

// checkImports reports the first import the engine cannot satisfy.
func checkImports(compiled wazero.CompiledModule) error {
	var unknown []string
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		if !knownImports[mod] {
			unknown = append(unknown, mod+"."+name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("image imports %d unknown function(s), first %s", len(unknown), unknown[0])
}

// initHosts instantiates the WASI and launcher host modules once per engine.
// Safe for concurrent calls from multiple runtimes sharing the same engine.
func (e *Engine) initHosts(ctx context.Context) error {
	if e.hostDone.Load() {
		return nil
	}

	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.hostDone.Load() {
		return nil
	}

	if e.runtime.Module(WASIModule) == nil {
		if _, err := instantiateWASI(ctx, e.runtime); err != nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}
	if e.runtime.Module(HostModule) == nil {
		if _, err := instantiateHost(ctx, e.runtime); err != nil {
			return fmt.Errorf("instantiate %s: %w", HostModule, err)
		}
	}

	e.hostDone.Store(true)
	return nil
}

func (e *Engine) instantiate(ctx context.Context, compiled wazero.CompiledModule, cfg wazero.ModuleConfig) (api.Module, error) {
	return e.runtime.InstantiateModule(ctx, compiled, cfg)
}
