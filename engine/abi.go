package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-boot/errors"
)

// Runtime ABI exported by native images.
const (
	ExportMemory         = "memory"
	ExportStartup        = "rt_startup"
	ExportAlloc          = "rt_alloc"
	ExportStrNew         = "rt_str_new"
	ExportListNew        = "rt_list_new"
	ExportListSet        = "rt_list_set"
	ExportExcOccurred    = "rt_exc_occurred"
	ExportPrintTraceback = "rt_print_traceback"

	// DefaultEntry is the entry function of a native image unless overridden.
	DefaultEntry = "entry_point"

	// ExportStart is the WASI command entry.
	ExportStart = "_start"

	// ABISection is the custom section describing the image's compile-time widths.
	ABISection = "imageboot.abi"
	ABIVersion = 1

	// HostModule is the import module served by the launcher.
	HostModule = "imageboot"
	// WASIModule is the WASI preview1 import module.
	WASIModule = "wasi_snapshot_preview1"
)

// pointerSize is fixed by the memory32 model of core WebAssembly.
const pointerSize = 4

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func sig(params []api.ValueType, results ...api.ValueType) signature {
	return signature{params: params, results: results}
}

func i32s(n int) []api.ValueType {
	ts := make([]api.ValueType, n)
	for i := range ts {
		ts[i] = api.ValueTypeI32
	}
	return ts
}

var (
	sigStartup   = sig(nil, api.ValueTypeI32)
	sigAlloc     = sig(i32s(1), api.ValueTypeI32)
	sigStrNew    = sig(i32s(2), api.ValueTypeI32)
	sigListNew   = sig(i32s(1), api.ValueTypeI32)
	sigListSet   = sig(i32s(3))
	sigExc       = sig(nil, api.ValueTypeI32)
	sigTraceback = sig(nil)
	sigEntry     = sig(i32s(1), api.ValueTypeI32)
	sigStart     = sig(nil)
)

// nativeABI lists the exports every native image carries, entry excluded.
var nativeABI = []struct {
	name string
	sig  signature
}{
	{ExportStartup, sigStartup},
	{ExportAlloc, sigAlloc},
	{ExportStrNew, sigStrNew},
	{ExportListNew, sigListNew},
	{ExportListSet, sigListSet},
	{ExportExcOccurred, sigExc},
	{ExportPrintTraceback, sigTraceback},
}

func (s signature) String() string {
	return formatSignature(s.params, s.results)
}

func formatSignature(params, results []api.ValueType) string {
	return formatNames(typeNames(params), typeNames(results))
}

func (s signature) matches(def api.FunctionDefinition) bool {
	return equalTypes(s.params, def.ParamTypes()) && equalTypes(s.results, def.ResultTypes())
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkExport verifies that name is exported with signature want.
func checkExport(exports map[string]api.FunctionDefinition, name string, want signature) error {
	def, ok := exports[name]
	if !ok {
		return errors.MissingExport(name)
	}
	if !want.matches(def) {
		return errors.SignatureMismatch(name, want.String(), formatSignature(def.ParamTypes(), def.ResultTypes()))
	}
	return nil
}

// parseABISection reads the image's word width from the imageboot.abi section.
func parseABISection(data []byte) (wordSize int, err error) {
	if len(data) < 2 {
		return 0, errors.InvalidImage(fmt.Sprintf("%s section truncated (%d bytes)", ABISection, len(data)), nil)
	}
	if data[0] != ABIVersion {
		return 0, errors.InvalidImage(fmt.Sprintf("%s version %d not supported", ABISection, data[0]), nil)
	}
	switch ws := int(data[1]); ws {
	case 1, 2, 4, 8:
		return ws, nil
	default:
		return 0, errors.InvalidImage(fmt.Sprintf("%s word width %d is not a power of two up to 8", ABISection, ws), nil)
	}
}
