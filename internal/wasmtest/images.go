package wasmtest

// Behavior selects what a fixture's entry function does.
type Behavior int

const (
	// Return returns Code.
	Return Behavior = iota
	// Raise sets the runtime exception flag, then returns Code.
	Raise
	// Trap executes unreachable.
	Trap
	// Argc returns the length of the argument list.
	Argc
	// Exit calls proc_exit(Code).
	Exit
)

// Memory layout of native fixture images.
const (
	MessageAddr   = 16
	TracebackAddr = 256
	HeapBase      = 1024
	memoryPages   = 1
	memoryBytes   = memoryPages * 65536
)

// NativeOptions configures a native-ABI fixture image.
type NativeOptions struct {
	// StartupMessage, when set, makes rt_startup fail with this message.
	StartupMessage string
	// Traceback is written through imageboot.diag_write by rt_print_traceback.
	Traceback string
	// EntryName defaults to "entry_point".
	EntryName string
	// Omit leaves one export out of the image.
	Omit string
	// HeapLimit is the number of bytes rt_alloc may hand out.
	// Zero means the rest of the memory page.
	HeapLimit int32
	// WordSize is written to the imageboot.abi section. Zero omits the section.
	WordSize byte
	Behavior Behavior
	Code     int32
}

// NativeImage builds an image exporting the launcher's runtime ABI.
//
// Strings are 8-byte headers [len][ptr] and lists are [len][item...], both
// allocated by a bump allocator starting at HeapBase.
func NativeImage(opts NativeOptions) []byte {
	m := NewModule()

	// (import "imageboot" "diag_write" (func $diag_write (param i32 i32)))
	// (import "wasi_snapshot_preview1" "proc_exit" (func $proc_exit (param i32)))
	diagWrite := m.ImportFunc("imageboot", "diag_write", Sig(Params(I32, I32)))
	var procExit uint32
	if opts.Behavior == Exit {
		procExit = m.ImportFunc("wasi_snapshot_preview1", "proc_exit", Sig(Params(I32)))
	}

	m.Memory(memoryPages, "memory")

	limit := opts.HeapLimit
	if limit == 0 {
		limit = memoryBytes - HeapBase
	}
	// (global $heap (mut i32) (i32.const 1024))
	// (global $exc (mut i32) (i32.const 0))
	// (global $heap_end i32 (i32.const <1024+limit>))
	heap := m.Global(true, HeapBase)
	exc := m.Global(true, 0)
	heapEnd := m.Global(false, HeapBase+limit)

	// (func $alloc (param $size i32) (result i32) (local $p i32)
	//   (if (i32.gt_u (i32.add (global.get $heap) (local.get $size)) (global.get $heap_end))
	//     (then (global.set $exc (i32.const 1)) (return (i32.const 0))))
	//   (local.set $p (global.get $heap))
	//   (global.set $heap (i32.and (i32.add (i32.add (global.get $heap) (local.get $size)) (i32.const 3)) (i32.const -4)))
	//   (local.get $p))
	alloc := m.Func(Sig(Params(I32), I32), Params(I32), NewCode().
		GlobalGet(heap).LocalGet(0).I32Add().GlobalGet(heapEnd).I32GtU().
		If().
		I32Const(1).GlobalSet(exc).
		I32Const(0).Return().
		End().
		GlobalGet(heap).LocalSet(1).
		GlobalGet(heap).LocalGet(0).I32Add().I32Const(3).I32Add().I32Const(-4).I32And().GlobalSet(heap).
		LocalGet(1))

	// (func $str_new (param $ptr i32) (param $len i32) (result i32) (local $s i32)
	//   (if (i32.eqz (local.tee $s (call $alloc (i32.const 8)))) (then (return (i32.const 0))))
	//   (i32.store (local.get $s) (local.get $len))
	//   (i32.store offset=4 (local.get $s) (local.get $ptr))
	//   (local.get $s))
	strNew := m.Func(Sig(Params(I32, I32), I32), Params(I32), NewCode().
		I32Const(8).Call(alloc).LocalTee(2).I32Eqz().
		If().I32Const(0).Return().End().
		LocalGet(2).LocalGet(1).I32Store(0).
		LocalGet(2).LocalGet(0).I32Store(4).
		LocalGet(2))

	// (func $list_new (param $n i32) (result i32) (local $l i32)
	//   (if (i32.eqz (local.tee $l (call $alloc (i32.add (i32.mul (local.get $n) (i32.const 4)) (i32.const 4)))))
	//     (then (return (i32.const 0))))
	//   (i32.store (local.get $l) (local.get $n))
	//   (local.get $l))
	listNew := m.Func(Sig(Params(I32), I32), Params(I32), NewCode().
		LocalGet(0).I32Const(4).I32Mul().I32Const(4).I32Add().Call(alloc).LocalTee(1).I32Eqz().
		If().I32Const(0).Return().End().
		LocalGet(1).LocalGet(0).I32Store(0).
		LocalGet(1))

	// (func $list_set (param $l i32) (param $i i32) (param $s i32)
	//   (i32.store offset=4 (i32.add (local.get $l) (i32.mul (local.get $i) (i32.const 4))) (local.get $s)))
	listSet := m.Func(Sig(Params(I32, I32, I32)), nil, NewCode().
		LocalGet(0).LocalGet(1).I32Const(4).I32Mul().I32Add().LocalGet(2).I32Store(4))

	// (func $exc_occurred (result i32) (global.get $exc))
	excOccurred := m.Func(Sig(nil, I32), nil, NewCode().GlobalGet(exc))

	// (func $startup (result i32) (i32.const 0))
	// or, with a message in (data (i32.const 16) "message\00"):
	// (func $startup (result i32) (i32.const 16))
	startupCode := NewCode().I32Const(0)
	if opts.StartupMessage != "" {
		m.Data(MessageAddr, append([]byte(opts.StartupMessage), 0))
		startupCode = NewCode().I32Const(MessageAddr)
	}
	startup := m.Func(Sig(nil, I32), nil, startupCode)

	if opts.Traceback != "" {
		m.Data(TracebackAddr, []byte(opts.Traceback))
	}
	// (func $traceback (call $diag_write (i32.const 256) (i32.const <len>)))
	traceback := m.Func(Sig(nil), nil, NewCode().
		I32Const(TracebackAddr).I32Const(int32(len(opts.Traceback))).Call(diagWrite))

	// (func $entry (param $argv i32) (result i32) ...)
	entryCode := NewCode()
	switch opts.Behavior {
	case Return:
		// (i32.const <code>)
		entryCode.I32Const(opts.Code)
	case Raise:
		// (global.set $exc (i32.const 1)) (i32.const <code>)
		entryCode.I32Const(1).GlobalSet(exc).I32Const(opts.Code)
	case Trap:
		// (unreachable)
		entryCode.Unreachable()
	case Argc:
		// (i32.load (local.get $argv))
		entryCode.LocalGet(0).I32Load(0)
	case Exit:
		// (call $proc_exit (i32.const <code>)) (i32.const 0)
		entryCode.I32Const(opts.Code).Call(procExit).I32Const(0)
	}
	entry := m.Func(Sig(Params(I32), I32), nil, entryCode)

	entryName := opts.EntryName
	if entryName == "" {
		entryName = "entry_point"
	}
	for _, e := range []struct {
		name string
		fn   uint32
	}{
		{"rt_alloc", alloc},
		{"rt_str_new", strNew},
		{"rt_list_new", listNew},
		{"rt_list_set", listSet},
		{"rt_exc_occurred", excOccurred},
		{"rt_startup", startup},
		{"rt_print_traceback", traceback},
		{entryName, entry},
	} {
		if e.name != opts.Omit {
			m.ExportFunc(e.name, e.fn)
		}
	}

	if opts.WordSize != 0 {
		m.Custom("imageboot.abi", []byte{1, opts.WordSize})
	}

	return m.Encode()
}

// WASIOptions configures a WASI command fixture image.
type WASIOptions struct {
	// ExtraImport adds an import from an unknown module.
	ExtraImport string
	Behavior    Behavior
	Code        int32
}

// WASIImage builds a WASI command exporting _start and memory.
// Argc exits with the WASI argument count as status.
func WASIImage(opts WASIOptions) []byte {
	m := NewModule()

	procExit := m.ImportFunc("wasi_snapshot_preview1", "proc_exit", Sig(Params(I32)))
	argsSizes := m.ImportFunc("wasi_snapshot_preview1", "args_sizes_get", Sig(Params(I32, I32), I32))
	if opts.ExtraImport != "" {
		m.ImportFunc(opts.ExtraImport, "f", Sig(nil))
	}

	m.Memory(memoryPages, "memory")

	// (func (export "_start") ...)
	code := NewCode()
	switch opts.Behavior {
	case Return:
	case Exit, Raise:
		// (call $proc_exit (i32.const <code>))
		code.I32Const(opts.Code).Call(procExit)
	case Trap:
		// (unreachable)
		code.Unreachable()
	case Argc:
		// (drop (call $args_sizes_get (i32.const 0) (i32.const 4)))
		// (call $proc_exit (i32.load (i32.const 0)))
		code.I32Const(0).I32Const(4).Call(argsSizes).Drop().
			I32Const(0).I32Load(0).Call(procExit)
	}
	start := m.Func(Sig(nil), nil, code)
	m.ExportFunc("_start", start)

	return m.Encode()
}
