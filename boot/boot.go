package boot

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/internal/console"
	"github.com/wippyai/wasm-boot/internal/logging"
	"github.com/wippyai/wasm-boot/internal/platform"
)

// Config holds the collaborators of a Bootstrap.
type Config struct {
	// Runtime is the managed runtime of the program image. Required.
	Runtime wasmboot.Runtime

	// PreInit runs before Runtime.Startup. It must be idempotent.
	// Nil means the platform has no pre-initialization step.
	PreInit func() error

	// Diagnostics receives fatal messages and tracebacks. Defaults to os.Stderr.
	Diagnostics io.Writer

	// Sections records timed debug sections per stage. May be nil.
	Sections *logging.Sections

	// Terminator ends the process in Main. Defaults to ProcessTerminator.
	Terminator Terminator
}

// Bootstrap runs the startup sequence for one process.
type Bootstrap struct {
	rt       wasmboot.Runtime
	preInit  func() error
	diag     *console.Console
	sections *logging.Sections
	term     Terminator
	log      *zap.Logger
	stage    Stage
	ran      bool
}

// New creates a Bootstrap from cfg.
func New(cfg Config) *Bootstrap {
	diag := cfg.Diagnostics
	if diag == nil {
		diag = os.Stderr
	}
	term := cfg.Terminator
	if term == nil {
		term = ProcessTerminator
	}
	return &Bootstrap{
		rt:       cfg.Runtime,
		preInit:  cfg.PreInit,
		diag:     console.New(diag),
		sections: cfg.Sections,
		term:     term,
		log:      Logger(),
	}
}

// Stage returns the stage the sequence reached.
func (b *Bootstrap) Stage() Stage {
	return b.stage
}

// Main runs the sequence and terminates the process with its status.
func (b *Bootstrap) Main(ctx context.Context, argv []string) {
	st := b.Run(ctx, argv)
	b.sections.Sync()
	_ = b.log.Sync()
	Terminate(b.term, st)
}

// Run executes the startup sequence and returns its exit status.
// The context reaches the runtime unchanged; Run never cancels it.
func (b *Bootstrap) Run(ctx context.Context, argv []string) ExitStatus {
	if b.ran {
		return b.fatal(errors.RuntimeInit("startup sequence already ran", nil))
	}
	b.ran = true

	if b.rt == nil {
		return b.fatal(errors.RuntimeInit("no runtime linked into the image", nil))
	}

	b.enter(StagePlatformCheck)
	p := b.rt.Platform()
	b.sections.Start("boot-platform")
	err := CheckPlatform(p)
	b.sections.Stop("boot-platform")
	if err != nil {
		b.log.Error("platform mismatch",
			zap.Int("pointer_size", p.PointerSize),
			zap.Int("word_size", p.WordSize),
			zap.Int("host_pointer_size", p.HostPointerSize),
			zap.Int("host_word_size", p.HostWordSize),
			zap.String("host", platform.Describe()))
		return b.fatal(err)
	}

	b.enter(StageRuntimeInit)
	b.sections.Start("boot-startup")
	err = b.startup(ctx)
	b.sections.Stop("boot-startup")
	if err != nil {
		return b.fatal(err)
	}

	b.enter(StageMarshal)
	b.sections.Start("boot-marshal")
	args, err := Marshal(ctx, b.rt, argv)
	b.sections.Stop("boot-marshal")
	if err != nil {
		b.log.Error("argument marshalling failed", zap.Int("argc", len(argv)), zap.Error(err))
		return b.fatal(err)
	}

	b.enter(StageInvoke)
	b.sections.Start("boot-entry")
	out := b.rt.Invoke(ctx, args.Handle())
	b.sections.Stop("boot-entry")

	b.enter(StageCheckException)
	if exc := out.Exception; exc != nil {
		b.log.Error("unhandled exception escaped entry function",
			zap.String("kind", exc.Kind),
			zap.String("message", exc.Message))
		b.rt.PrintTraceback(ctx, b.diag)
		b.enter(StageAbort)
		return Aborted()
	}

	b.enter(StageReturnExitCode)
	return Exited(int(out.Code))
}

func (b *Bootstrap) startup(ctx context.Context) error {
	if b.preInit != nil {
		if err := b.preInit(); err != nil {
			return errors.RuntimeInit("platform pre-initialization failed: "+err.Error(), err)
		}
	}
	if err := b.rt.Startup(ctx); err != nil {
		return errors.RuntimeInit(errors.Message(err), err)
	}
	return nil
}

func (b *Bootstrap) enter(s Stage) {
	b.log.Debug("stage", zap.Stringer("from", b.stage), zap.Stringer("to", s))
	b.stage = s
}

// fatal reports err on the diagnostic stream and moves to the abort stage.
func (b *Bootstrap) fatal(err error) ExitStatus {
	b.diag.Fatal(errors.Message(err))
	b.enter(StageAbort)
	return Aborted()
}

// Fatal prints the startup failure line for err to w and aborts through t.
// It is used for failures that happen before a Bootstrap exists.
func Fatal(w io.Writer, t Terminator, err error) {
	console.New(w).Fatal(errors.Message(err))
	Terminate(t, Aborted())
}
