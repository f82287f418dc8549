package wasmtest

import "bytes"

// Code accumulates a function body. The final end opcode is added by Module.
type Code struct {
	buf bytes.Buffer
}

// NewCode starts an empty body.
func NewCode() *Code {
	return &Code{}
}

func (c *Code) op(b ...byte) *Code {
	c.buf.Write(b)
	return c
}

func (c *Code) idx(op byte, i uint32) *Code {
	c.buf.WriteByte(op)
	writeU32(&c.buf, i)
	return c
}

func (c *Code) memarg(op byte, offset uint32) *Code {
	c.buf.WriteByte(op)
	writeU32(&c.buf, 2) // natural alignment for i32
	writeU32(&c.buf, offset)
	return c
}

func (c *Code) Unreachable() *Code        { return c.op(0x00) }
func (c *Code) If() *Code                 { return c.op(0x04, 0x40) }
func (c *Code) End() *Code                { return c.op(0x0b) }
func (c *Code) Return() *Code             { return c.op(0x0f) }
func (c *Code) Call(fn uint32) *Code      { return c.idx(0x10, fn) }
func (c *Code) Drop() *Code               { return c.op(0x1a) }
func (c *Code) LocalGet(i uint32) *Code   { return c.idx(0x20, i) }
func (c *Code) LocalSet(i uint32) *Code   { return c.idx(0x21, i) }
func (c *Code) LocalTee(i uint32) *Code   { return c.idx(0x22, i) }
func (c *Code) GlobalGet(i uint32) *Code  { return c.idx(0x23, i) }
func (c *Code) GlobalSet(i uint32) *Code  { return c.idx(0x24, i) }
func (c *Code) I32Load(off uint32) *Code  { return c.memarg(0x28, off) }
func (c *Code) I32Store(off uint32) *Code { return c.memarg(0x36, off) }
func (c *Code) I32Eqz() *Code             { return c.op(0x45) }
func (c *Code) I32GtU() *Code             { return c.op(0x4b) }
func (c *Code) I32Add() *Code             { return c.op(0x6a) }
func (c *Code) I32Mul() *Code             { return c.op(0x6c) }
func (c *Code) I32And() *Code             { return c.op(0x71) }

// I32Const pushes v.
func (c *Code) I32Const(v int32) *Code {
	c.buf.WriteByte(0x41)
	writeS32(&c.buf, v)
	return c
}

// Bytes returns the encoded instructions without the trailing end.
func (c *Code) Bytes() []byte {
	return c.buf.Bytes()
}
