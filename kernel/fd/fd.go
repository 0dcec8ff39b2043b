/*
 * pkos - Per-process file-descriptor table and operation vtables.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package fd is the per-process file-descriptor table: a fixed 8-slot
// array, each slot a (operations vtable, file context, presence flag)
// tuple. Slots 0 and 1 are the reserved stdin/stdout pair and are never
// returned by Open nor cleared by Close.
package fd

import "errors"

// MaxFDs is the size of a process's file-descriptor table.
const MaxFDs = 8

// ErrNotSupported is returned by any Ops method a given file type does
// not implement (e.g. Write on a directory).
var ErrNotSupported = errors.New("fd: operation not supported")

// ErrBadFD is returned for an out-of-range or unopened descriptor, or an
// attempt to close/reuse fd 0 or 1.
var ErrBadFD = errors.New("fd: invalid descriptor")

// ErrTableFull is returned by Table.Open when no free slot exists.
var ErrTableFull = errors.New("fd: table full")

// Ops is the operations vtable every open file exposes. Implementations
// that don't support an operation return ErrNotSupported rather than
// omitting the method, so every open file answers every call, successfully
// or not.
type Ops interface {
	Open(ctx *Context, name string) error
	Close(ctx *Context) error
	Read(ctx *Context, buf []byte) (int, error)
	Write(ctx *Context, buf []byte) (int, error)
}

// Context is the per-descriptor file state: which file type this is,
// which filesystem inode (if any) backs it, and the current byte offset
// for sequential reads.
type Context struct {
	Filetype uint32
	Inode    uint32
	Offset   uint32
}

// entry is one slot of the table.
type entry struct {
	ops     Ops
	ctx     Context
	present bool
}

// Table is a process's fixed 8-slot FD table.
type Table struct {
	slots [MaxFDs]entry
}

// NewTable returns a table with stdin and stdout already populated.
func NewTable(stdin, stdout Ops) *Table {
	t := &Table{}
	t.slots[0] = entry{ops: stdin, present: true}
	t.slots[1] = entry{ops: stdout, present: true}
	return t
}

// Open installs ops on the lowest-numbered free slot at or above 2,
// calls its Open method, and returns the slot number.
func (t *Table) Open(ops Ops, name string) (int, error) {
	for i := 2; i < MaxFDs; i++ {
		if t.slots[i].present {
			continue
		}
		ctx := Context{}
		if err := ops.Open(&ctx, name); err != nil {
			return -1, err
		}
		t.slots[i] = entry{ops: ops, ctx: ctx, present: true}
		return i, nil
	}
	return -1, ErrTableFull
}

// Close tears down fd, refusing 0, 1, out-of-range, and already-closed
// descriptors.
func (t *Table) Close(fdNum int) error {
	if fdNum < 2 || fdNum >= MaxFDs || !t.slots[fdNum].present {
		return ErrBadFD
	}
	e := &t.slots[fdNum]
	err := e.ops.Close(&e.ctx)
	*e = entry{}
	return err
}

// CloseAll tears down every descriptor at or above 2, used when a
// process is torn down by halt. Errors from individual Close calls are
// not surfaced; halt proceeds regardless.
func (t *Table) CloseAll() {
	for i := 2; i < MaxFDs; i++ {
		if t.slots[i].present {
			_ = t.Close(i)
		}
	}
}

// ForEachOpen calls fn with the operations vtable of every populated
// descriptor at or above 2, in slot order.
func (t *Table) ForEachOpen(fn func(ops Ops)) {
	for i := 2; i < MaxFDs; i++ {
		if t.slots[i].present {
			fn(t.slots[i].ops)
		}
	}
}

// Read reads from fd into buf.
func (t *Table) Read(fdNum int, buf []byte) (int, error) {
	e, err := t.live(fdNum)
	if err != nil {
		return -1, err
	}
	return e.ops.Read(&e.ctx, buf)
}

// Write writes buf to fd.
func (t *Table) Write(fdNum int, buf []byte) (int, error) {
	e, err := t.live(fdNum)
	if err != nil {
		return -1, err
	}
	return e.ops.Write(&e.ctx, buf)
}

func (t *Table) live(fdNum int) (*entry, error) {
	if fdNum < 0 || fdNum >= MaxFDs || !t.slots[fdNum].present {
		return nil, ErrBadFD
	}
	return &t.slots[fdNum], nil
}
