/*
 * pkos - VGA text-mode buffer and cursor.
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

// Package vga simulates an 80x25 text-mode video page: a flat array of
// (char, attribute) cells plus a cursor position. Four such pages exist in
// the running kernel (one "kernel" page and one backing page per
// terminal); kernel/memory maps exactly one of them into a process's
// vidmap window at a time.
package vga

const (
	Width  = 80
	Height = 25
	Cells  = Width * Height

	PhysKernel = 0xB8000
	PhysTerm0  = 0xB9000
	PhysTerm1  = 0xBA000
	PhysTerm2  = 0xBB000
)

// DefaultAttr is the standard light-grey-on-black text attribute byte.
const DefaultAttr byte = 0x07

// Page is one 4KiB video page: Width*Height (char, attribute) pairs.
type Page struct {
	Cells [Cells]Cell
	CurX  int
	CurY  int
}

// Cell is one character position on screen.
type Cell struct {
	Ch   byte
	Attr byte
}

// NewPage returns a blank page with the cursor homed.
func NewPage() *Page {
	p := &Page{}
	p.Clear()
	return p
}

// Clear blanks every cell and homes the cursor.
func (p *Page) Clear() {
	for i := range p.Cells {
		p.Cells[i] = Cell{Ch: ' ', Attr: DefaultAttr}
	}
	p.CurX, p.CurY = 0, 0
}

// CopyFrom overwrites p's cells and cursor with src's.
func (p *Page) CopyFrom(src *Page) {
	p.Cells = src.Cells
	p.CurX, p.CurY = src.CurX, src.CurY
}

// PutChar writes one character at the cursor and advances it, scrolling
// the page up by one row when it runs off the bottom. Tab advances to the
// next multiple-of-four column.
func (p *Page) PutChar(ch byte) {
	switch ch {
	case '\n':
		p.CurX = 0
		p.CurY++
	case '\t':
		p.CurX = (p.CurX + 4) &^ 3
	case '\b':
		if p.CurX > 0 {
			p.CurX--
			p.Cells[p.CurY*Width+p.CurX] = Cell{Ch: ' ', Attr: DefaultAttr}
		}
	default:
		p.Cells[p.CurY*Width+p.CurX] = Cell{Ch: ch, Attr: DefaultAttr}
		p.CurX++
	}
	if p.CurX >= Width {
		p.CurX = 0
		p.CurY++
	}
	if p.CurY >= Height {
		p.scroll()
		p.CurY = Height - 1
	}
}

// WriteString writes each byte of s through PutChar in order.
func (p *Page) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		p.PutChar(s[i])
	}
}

func (p *Page) scroll() {
	copy(p.Cells[:], p.Cells[Width:])
	for x := 0; x < Width; x++ {
		p.Cells[(Height-1)*Width+x] = Cell{Ch: ' ', Attr: DefaultAttr}
	}
}
