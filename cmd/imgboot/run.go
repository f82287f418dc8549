package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/boot"
	"github.com/wippyai/wasm-boot/engine"
	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/internal/logging"
	"github.com/wippyai/wasm-boot/internal/platform"
)

func (a *app) newRunCmd(use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [flags] <image.wasm> [program args...]",
		Short: "Run a program image",
		Args:  imageArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.launch(cmd.Context(), cmd, args)
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	addRunFlags(cmd.Flags())
	return cmd
}

// launch runs the image at args[0]. It does not return to the caller in
// production: every path ends in the terminator.
func (a *app) launch(ctx context.Context, cmd *cobra.Command, args []string) {
	if ctx == nil {
		ctx = context.Background()
	}

	v, err := newViper(cmd.Flags())
	if err != nil {
		boot.Fatal(a.stderr, a.term, err)
		return
	}
	cfg, err := loadConfig(v)
	if err != nil {
		boot.Fatal(a.stderr, a.term, err)
		return
	}

	log := zap.NewNop()
	if cfg.LogLevel != "" {
		if log, err = logging.New(logging.Options{Level: cfg.LogLevel}); err != nil {
			boot.Fatal(a.stderr, a.term, errors.InvalidConfig(err.Error(), nil))
			return
		}
	}
	boot.SetLogger(log.Named("boot"))
	engine.SetLogger(log.Named("engine"))

	sections, err := logging.OpenSections(cfg.Log)
	if err != nil {
		boot.Fatal(a.stderr, a.term, errors.InvalidConfig(fmt.Sprintf("%s %q", keyLog, cfg.Log), err))
		return
	}

	path := args[0]
	argv := append([]string{path}, args[1:]...)
	if cfg.Argv0 != "" {
		argv[0] = cfg.Argv0
	}

	log.Debug("launching image",
		zap.String("image", path),
		zap.Int("argc", len(argv)),
		zap.String("entry", cfg.Entry),
		zap.String("cache_dir", cfg.CacheDir),
		zap.Strings("env", envList(cfg.Env)),
		zap.Int("mounts", len(cfg.Mounts)))

	eng, rt, err := a.prepare(ctx, cfg, path)
	if err != nil {
		boot.Fatal(a.stderr, a.term, err)
		return
	}
	// Only reached when the terminator returns.
	defer eng.Close(ctx)

	boot.New(boot.Config{
		Runtime:     rt,
		PreInit:     platform.PreInit,
		Diagnostics: a.stderr,
		Sections:    sections,
		Terminator:  a.term,
	}).Main(ctx, argv)
}

// prepare loads the image and creates its runtime.
func (a *app) prepare(ctx context.Context, cfg runConfig, path string) (*engine.Engine, wasmboot.Runtime, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.InvalidImage("cannot read image", err)
	}

	eng, err := engine.New(ctx, &engine.Config{
		CacheDir:         cfg.CacheDir,
		MemoryLimitPages: cfg.MemoryLimitPages,
	})
	if err != nil {
		return nil, nil, err
	}

	img, err := eng.Load(ctx, wasm)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, nil, err
	}

	rt, err := img.NewRuntime(engine.Options{
		Stdin:  a.stdin,
		Stdout: a.stdout,
		Stderr: a.stderr,
		Env:    cfg.Env,
		Mounts: cfg.Mounts,
		Entry:  cfg.Entry,
	})
	if err != nil {
		_ = eng.Close(ctx)
		return nil, nil, err
	}
	return eng, rt, nil
}
