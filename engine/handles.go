package engine

import (
	"fmt"

	wasmboot "github.com/wippyai/wasm-boot"
)

// DefaultArgBytesLimit bounds the host-side argument storage of WASI images.
const DefaultArgBytesLimit = 2 << 20

type valueKind uint8

const (
	kindString valueKind = iota + 1
	kindList
)

// per-entry overhead charged against the budget, mirroring a string header
const entryOverhead = 8

type entry struct {
	str   []byte
	items []wasmboot.Handle
	kind  valueKind
	size  int
}

// handleTable stores host-side runtime values for images without their own
// allocator. Handles start at 1 and are never reused within a table.
type handleTable struct {
	entries map[wasmboot.Handle]*entry
	next    wasmboot.Handle
	used    int
	limit   int
}

func newHandleTable(limit int) *handleTable {
	if limit <= 0 {
		limit = DefaultArgBytesLimit
	}
	return &handleTable{
		entries: make(map[wasmboot.Handle]*entry),
		limit:   limit,
	}
}

func (t *handleTable) insert(e *entry) (wasmboot.Handle, error) {
	if t.used+e.size > t.limit {
		return 0, fmt.Errorf("argument storage exhausted (%d of %d bytes used, %d requested): %w",
			t.used, t.limit, e.size, wasmboot.ErrOutOfMemory)
	}
	t.next++
	t.entries[t.next] = e
	t.used += e.size
	return t.next, nil
}

func (t *handleTable) newString(b []byte) (wasmboot.Handle, error) {
	return t.insert(&entry{
		kind: kindString,
		str:  append([]byte(nil), b...),
		size: entryOverhead + len(b),
	})
}

func (t *handleTable) newList(n int) (wasmboot.Handle, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative list length %d", n)
	}
	return t.insert(&entry{
		kind:  kindList,
		items: make([]wasmboot.Handle, n),
		size:  entryOverhead + 4*n,
	})
}

func (t *handleTable) get(h wasmboot.Handle, kind valueKind) (*entry, bool) {
	e, ok := t.entries[h]
	if !ok || e.kind != kind {
		return nil, false
	}
	return e, true
}

func (t *handleTable) setItem(list wasmboot.Handle, i int, str wasmboot.Handle) error {
	l, ok := t.get(list, kindList)
	if !ok {
		return fmt.Errorf("handle %d is not a list", list)
	}
	if _, ok := t.get(str, kindString); !ok {
		return fmt.Errorf("handle %d is not a string", str)
	}
	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("index %d out of bounds (length %d)", i, len(l.items))
	}
	l.items[i] = str
	return nil
}

// take removes list and every string it holds, returning the strings in order.
func (t *handleTable) take(list wasmboot.Handle) ([]string, error) {
	l, ok := t.get(list, kindList)
	if !ok {
		return nil, fmt.Errorf("handle %d is not a list", list)
	}
	out := make([]string, len(l.items))
	for i, h := range l.items {
		s, ok := t.get(h, kindString)
		if !ok {
			return nil, fmt.Errorf("list slot %d is empty", i)
		}
		out[i] = string(s.str)
	}
	for _, h := range l.items {
		t.drop(h)
	}
	t.drop(list)
	return out, nil
}

func (t *handleTable) drop(h wasmboot.Handle) {
	if e, ok := t.entries[h]; ok {
		t.used -= e.size
		delete(t.entries, h)
	}
}

func (t *handleTable) len() int {
	return len(t.entries)
}
