// Package wasmtest assembles small core WebAssembly modules for tests.
package wasmtest

import (
	"bytes"
	"encoding/binary"
)

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Sig is shorthand for a FuncType.
func Sig(params []ValType, results ...ValType) FuncType {
	return FuncType{Params: params, Results: results}
}

// Params is shorthand for a parameter list.
func Params(ts ...ValType) []ValType {
	return ts
}

const (
	kindFunc   byte = 0x00
	kindMemory byte = 0x02
	kindGlobal byte = 0x03
)

type importFunc struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	typeIdx uint32
	locals  []ValType
	body    []byte
}

type global struct {
	typ     ValType
	mutable bool
	init    int32
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	offset uint32
	data   []byte
}

type custom struct {
	name string
	data []byte
}

// Module is a core module under construction.
// Imports must be added before any function is defined.
type Module struct {
	types    []FuncType
	imports  []importFunc
	funcs    []function
	pages    uint32
	globals  []global
	exports  []export
	segments []segment
	customs  []custom
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{}
}

func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.types {
		if bytes.Equal(valBytes(t.Params), valBytes(ft.Params)) &&
			bytes.Equal(valBytes(t.Results), valBytes(ft.Results)) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

func valBytes(ts []ValType) []byte {
	b := make([]byte, len(ts))
	for i, t := range ts {
		b[i] = byte(t)
	}
	return b
}

// ImportFunc declares an imported function and returns its index.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: import added after a defined function")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typeIdx: m.typeIndex(ft)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function and returns its index.
func (m *Module) Func(ft FuncType, locals []ValType, code *Code) uint32 {
	m.funcs = append(m.funcs, function{typeIdx: m.typeIndex(ft), locals: locals, body: code.Bytes()})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// ExportFunc exports function fn as name.
func (m *Module) ExportFunc(name string, fn uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: fn})
}

// Memory defines the module's memory with min pages and exports it as name
// when name is not empty.
func (m *Module) Memory(pages uint32, name string) {
	m.pages = pages
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindMemory})
	}
}

// Global defines an i32 global and returns its index.
func (m *Module) Global(mutable bool, init int32) uint32 {
	m.globals = append(m.globals, global{typ: I32, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1)
}

// ExportGlobal exports global g as name.
func (m *Module) ExportGlobal(name string, g uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindGlobal, idx: g})
}

// Data places b in memory at offset.
func (m *Module) Data(offset uint32, b []byte) {
	m.segments = append(m.segments, segment{offset: offset, data: b})
}

// Custom adds a custom section.
func (m *Module) Custom(name string, data []byte) {
	m.customs = append(m.customs, custom{name: name, data: data})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	var w bytes.Buffer
	w.Write([]byte{0x00, 0x61, 0x73, 0x6d})
	_ = binary.Write(&w, binary.LittleEndian, uint32(1))

	if len(m.types) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec.WriteByte(0x60)
			writeVec(&sec, valBytes(t.Params))
			writeVec(&sec, valBytes(t.Results))
		}
		writeSection(&w, 1, sec.Bytes())
	}

	if len(m.imports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(kindFunc)
			writeU32(&sec, imp.typeIdx)
		}
		writeSection(&w, 2, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			writeU32(&sec, f.typeIdx)
		}
		writeSection(&w, 3, sec.Bytes())
	}

	if m.pages > 0 {
		var sec bytes.Buffer
		writeU32(&sec, 1)
		sec.WriteByte(0x00)
		writeU32(&sec, m.pages)
		writeSection(&w, 5, sec.Bytes())
	}

	if len(m.globals) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.WriteByte(byte(g.typ))
			if g.mutable {
				sec.WriteByte(0x01)
			} else {
				sec.WriteByte(0x00)
			}
			sec.WriteByte(0x41)
			writeS32(&sec, g.init)
			sec.WriteByte(0x0b)
		}
		writeSection(&w, 6, sec.Bytes())
	}

	if len(m.exports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			writeU32(&sec, e.idx)
		}
		writeSection(&w, 7, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body bytes.Buffer
			writeU32(&body, uint32(len(f.locals)))
			for _, l := range f.locals {
				writeU32(&body, 1)
				body.WriteByte(byte(l))
			}
			body.Write(f.body)
			body.WriteByte(0x0b)
			writeVec(&sec, body.Bytes())
		}
		writeSection(&w, 10, sec.Bytes())
	}

	if len(m.segments) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.segments)))
		for _, s := range m.segments {
			sec.WriteByte(0x00)
			sec.WriteByte(0x41)
			writeS32(&sec, int32(s.offset))
			sec.WriteByte(0x0b)
			writeVec(&sec, s.data)
		}
		writeSection(&w, 11, sec.Bytes())
	}

	for _, c := range m.customs {
		var sec bytes.Buffer
		writeName(&sec, c.name)
		sec.Write(c.data)
		writeSection(&w, 0, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeVec(w, data)
}
