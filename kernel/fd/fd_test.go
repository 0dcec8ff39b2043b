/*
 * pkos - File-descriptor table test set.
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

package fd

import "testing"

type nullOps struct{}

func (nullOps) Open(ctx *Context, name string) error          { return nil }
func (nullOps) Close(ctx *Context) error                      { return nil }
func (nullOps) Read(ctx *Context, buf []byte) (int, error)     { return 0, nil }
func (nullOps) Write(ctx *Context, buf []byte) (int, error)    { return len(buf), nil }

func TestStdinStdoutReserved(t *testing.T) {
	tbl := NewTable(nullOps{}, nullOps{})
	if err := tbl.Close(0); err != ErrBadFD {
		t.Errorf("expected ErrBadFD closing fd 0, got %v", err)
	}
	if err := tbl.Close(1); err != ErrBadFD {
		t.Errorf("expected ErrBadFD closing fd 1, got %v", err)
	}
}

func TestOpenAllocatesLowestFreeSlot(t *testing.T) {
	tbl := NewTable(nullOps{}, nullOps{})
	fdA, err := tbl.Open(nullOps{}, "a")
	if err != nil || fdA != 2 {
		t.Fatalf("expected fd 2, got %d err=%v", fdA, err)
	}
	fdB, err := tbl.Open(nullOps{}, "b")
	if err != nil || fdB != 3 {
		t.Fatalf("expected fd 3, got %d err=%v", fdB, err)
	}
}

func TestOpenExhaustionAndReuse(t *testing.T) {
	tbl := NewTable(nullOps{}, nullOps{})
	for i := 0; i < 6; i++ {
		if _, err := tbl.Open(nullOps{}, "f"); err != nil {
			t.Fatalf("unexpected error opening file %d: %v", i, err)
		}
	}
	if _, err := tbl.Open(nullOps{}, "overflow"); err != ErrTableFull {
		t.Fatalf("expected ErrTableFull on the 7th open, got %v", err)
	}
	if err := tbl.Close(2); err != nil {
		t.Fatalf("unexpected error closing fd 2: %v", err)
	}
	fd, err := tbl.Open(nullOps{}, "reopen")
	if err != nil || fd != 2 {
		t.Fatalf("expected freed slot 2 to be reused, got fd=%d err=%v", fd, err)
	}
}

func TestReadWriteUnopenedFD(t *testing.T) {
	tbl := NewTable(nullOps{}, nullOps{})
	if _, err := tbl.Read(5, make([]byte, 4)); err != ErrBadFD {
		t.Errorf("expected ErrBadFD reading an unopened fd, got %v", err)
	}
}

func TestForEachOpenSkipsStdioAndClosedSlots(t *testing.T) {
	tbl := NewTable(nullOps{}, nullOps{})
	tbl.Open(nullOps{}, "a")
	tbl.Open(nullOps{}, "b")
	tbl.Close(3)

	var seen int
	tbl.ForEachOpen(func(ops Ops) { seen++ })
	if seen != 1 {
		t.Errorf("got %d open entries, want 1", seen)
	}
}

func TestCloseAllLeavesStdioIntact(t *testing.T) {
	tbl := NewTable(nullOps{}, nullOps{})
	tbl.Open(nullOps{}, "a")
	tbl.CloseAll()
	if err := tbl.Close(0); err != ErrBadFD {
		t.Errorf("stdin should remain reserved after CloseAll")
	}
	if _, err := tbl.Open(nullOps{}, "b"); err != nil {
		t.Errorf("slot freed by CloseAll should be reusable: %v", err)
	}
}
