// Command imgboot launches a compiled program image as a native process.
//
//	imgboot [run] [flags] <image.wasm> [program args...]
//	imgboot inspect [-i] <image.wasm>
//
// The process exits with the entry function's result, with ExitAbort after a
// fatal startup failure or an unhandled exception, and with 2 on usage errors.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-boot/boot"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks command line mistakes, reported with exitUsage.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// app carries the process streams and terminator so commands can be tested.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	term   boot.Terminator
}

func main() {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		term:   boot.ProcessTerminator,
	}
	os.Exit(a.execute(os.Args[1:]))
}

// execute runs the command line and returns the status for commands that
// return instead of terminating the process.
func (a *app) execute(args []string) int {
	root := a.newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}

	var ue *usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	return exitFailure
}

func (a *app) newRootCmd() *cobra.Command {
	run := a.newRunCmd("run")

	root := a.newRunCmd("imgboot")
	root.Short = "Launch a compiled program image as a native process"
	root.Long = `imgboot loads a WebAssembly program image, checks that it fits the host,
starts its runtime, hands it the command line and exits with its result.

Flags stop at the image path; everything after it reaches the program.`
	root.Example = `  # Run an image, passing two arguments
  imgboot app.wasm --verbose input.txt

  # Keep compiled code between runs and log every stage
  imgboot --cache-dir ~/.cache/imgboot --log-level debug app.wasm

  # Show what an image exports
  imgboot inspect -i app.wasm`
	root.AddCommand(run, a.newInspectCmd())
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	return root
}

// imageArg requires the image path as the first positional argument.
func imageArg(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return &usageError{err: fmt.Errorf("%s requires an image path", cmd.CommandPath())}
	}
	return nil
}
