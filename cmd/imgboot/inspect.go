package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/boot"
	"github.com/wippyai/wasm-boot/engine"
	"github.com/wippyai/wasm-boot/errors"
)

// abiRoles describes the runtime ABI exports of native images.
var abiRoles = map[string]string{
	engine.ExportMemory:         "linear memory",
	engine.ExportStartup:        "runtime startup",
	engine.ExportAlloc:          "raw allocation",
	engine.ExportStrNew:         "string constructor",
	engine.ExportListNew:        "list constructor",
	engine.ExportListSet:        "list store",
	engine.ExportExcOccurred:    "pending exception check",
	engine.ExportPrintTraceback: "traceback printer",
	engine.DefaultEntry:         "entry function",
	engine.ExportStart:          "WASI command entry",
}

// imageInfo is everything inspect shows about an image.
type imageInfo struct {
	Path       string
	Flavor     engine.Flavor
	Platform   wasmboot.Platform
	ABISection bool
	GuardErr   error
	Exports    []engine.Export
	Imports    []engine.Import
}

// row is one export or import line.
type row struct {
	Section string
	Name    string
	Sig     string
	Note    string
}

func (info *imageInfo) rows() []row {
	out := make([]row, 0, len(info.Exports)+len(info.Imports))
	for _, e := range info.Exports {
		out = append(out, row{Section: "export", Name: e.Name, Sig: e.Signature(), Note: abiRoles[e.Name]})
	}
	for _, i := range info.Imports {
		note := "provided by imgboot"
		if !i.Known {
			note = "unresolved"
		}
		out = append(out, row{Section: "import", Name: i.Module + "." + i.Name, Sig: i.Signature(), Note: note})
	}
	return out
}

func (a *app) newInspectCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "inspect [-i] <image.wasm>",
		Short: "Show an image's flavor, widths, exports and imports",
		Args:  imageArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			info, err := inspectImage(ctx, args[0])
			if err != nil {
				return err
			}
			if interactive {
				return runInteractive(info, a.stdin, a.stdout)
			}
			writeReport(a.stdout, info)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse exports and imports interactively")
	return cmd
}

// inspectImage loads path without starting it.
func inspectImage(ctx context.Context, path string) (*imageInfo, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidImage("cannot read image", err)
	}

	eng, err := engine.New(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer eng.Close(ctx)

	img, err := eng.Load(ctx, wasm)
	if err != nil {
		return nil, err
	}

	p := img.Platform()
	return &imageInfo{
		Path:       path,
		Flavor:     img.Flavor(),
		Platform:   p,
		ABISection: img.HasABISection(),
		GuardErr:   boot.CheckPlatform(p),
		Exports:    img.Exports(),
		Imports:    img.Imports(),
	}, nil
}

// writeReport prints info as text. Styling follows w's capabilities.
func writeReport(w io.Writer, info *imageInfo) {
	r := lipgloss.NewRenderer(w)
	label := r.NewStyle().Bold(true).Width(10)
	bad := r.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	words := "default"
	if info.ABISection {
		words = engine.ABISection
	}
	guard := "ok"
	if info.GuardErr != nil {
		guard = bad.Render(errors.Message(info.GuardErr))
	}

	fmt.Fprintln(w, label.Render("Image:"), info.Path)
	fmt.Fprintln(w, label.Render("Flavor:"), info.Flavor)
	fmt.Fprintln(w, label.Render("Pointer:"), fmt.Sprintf("%d bytes (host %d)", info.Platform.PointerSize, info.Platform.HostPointerSize))
	fmt.Fprintln(w, label.Render("Word:"), fmt.Sprintf("%d bytes (host %d, %s)", info.Platform.WordSize, info.Platform.HostWordSize, words))
	fmt.Fprintln(w, label.Render("Guard:"), guard)
	fmt.Fprintln(w)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("KIND", "NAME", "SIGNATURE", "NOTE")
	for _, e := range info.rows() {
		t.Row(e.Section, e.Name, e.Sig, e.Note)
	}
	fmt.Fprintln(w, t.String())
}
