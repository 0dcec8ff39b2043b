/*
 * pkos - Terminal multiplexing.
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

// Package terminal holds the three statically allocated terminals and the
// displayed/active distinction: displayed_tid is whichever backing page
// the real screen shows, active_tid is whichever terminal the currently
// scheduled task reads and prints to. The two diverge whenever a task
// running in a non-displayed terminal is scheduled.
package terminal

import (
	"sync"

	"github.com/archkernel/pkos/kernel/memory"
	"github.com/archkernel/pkos/kernel/vga"
)

// Count is the number of statically allocated terminals.
const Count = 3

// KeyboardBufSize bounds a terminal's pending input line.
const KeyboardBufSize = 128

// Terminal is one of the three multiplexed consoles.
type Terminal struct {
	ID int

	Backing  *vga.Page
	physAddr uint32

	kbBuf [KeyboardBufSize]byte
	kbLen int

	isReading bool
	readMu    sync.Mutex
}

var (
	mu           sync.Mutex
	terminals    [Count]*Terminal
	displayedTid int
	activeTid    int
)

// physOf maps a terminal id to its fixed backing-page physical address.
func physOf(id int) uint32 {
	switch id {
	case 0:
		return vga.PhysTerm0
	case 1:
		return vga.PhysTerm1
	default:
		return vga.PhysTerm2
	}
}

// Init allocates the three terminals and registers their backing pages as
// legal vidmap targets, along with the kernel's own video page.
func Init() {
	mu.Lock()
	defer mu.Unlock()

	memory.RegisterVideoPage(vga.PhysKernel)
	for i := 0; i < Count; i++ {
		terminals[i] = &Terminal{ID: i, Backing: vga.NewPage(), physAddr: physOf(i)}
		memory.RegisterVideoPage(terminals[i].physAddr)
	}
	displayedTid, activeTid = 0, 0
}

// Get returns terminal id, or nil if out of range.
func Get(id int) *Terminal {
	mu.Lock()
	defer mu.Unlock()
	if id < 0 || id >= Count {
		return nil
	}
	return terminals[id]
}

// DisplayedTid returns the terminal currently shown on the real screen.
func DisplayedTid() int {
	mu.Lock()
	defer mu.Unlock()
	return displayedTid
}

// ActiveTid returns the terminal the currently scheduled task prints to
// and reads from.
func ActiveTid() int {
	mu.Lock()
	defer mu.Unlock()
	return activeTid
}

// kernelPage stands for the live VGA buffer shown on the real screen. It
// is allocated here; the displayed terminal writes into it and
// SetDisplayedTerminal swaps terminal content through it. Nothing in
// cmd/pkos draws it to the host's screen.
var kernelPage = vga.NewPage()

// KernelPage returns the buffer currently rendered to the real screen.
func KernelPage() *vga.Page {
	mu.Lock()
	defer mu.Unlock()
	return kernelPage
}

// SetDisplayedTerminal swaps the kernel video page with new's backing
// page (preserving the outgoing terminal's content in its own backing
// store), updates the hardware cursor, and re-targets active_tid's
// output destination per the kernel-page/backing-page rule.
func SetDisplayedTerminal(newID int) {
	mu.Lock()
	defer mu.Unlock()

	if newID < 0 || newID >= Count || newID == displayedTid {
		return
	}

	outgoing := terminals[displayedTid]
	incoming := terminals[newID]

	outgoing.Backing.CopyFrom(kernelPage)
	kernelPage.CopyFrom(incoming.Backing)

	displayedTid = newID
	retargetActiveLocked()
}

// SetActiveTerminal changes which terminal the scheduled task's output
// and vidmap window are routed to.
func SetActiveTerminal(newID int) {
	mu.Lock()
	defer mu.Unlock()
	if newID < 0 || newID >= Count {
		return
	}
	activeTid = newID
	retargetActiveLocked()
}

// retargetActiveLocked points the vidmap window at the kernel page if
// active==displayed, or at the active terminal's own backing page
// otherwise. Caller must hold mu.
func retargetActiveLocked() {
	if activeTid == displayedTid {
		memory.SetUserVideoBase(vga.PhysKernel)
		return
	}
	memory.SetUserVideoBase(terminals[activeTid].physAddr)
}

// outputPage returns the Page a write to tid should render into: the
// live kernel page if tid is displayed, else its own backing store.
func (t *Terminal) outputPage() *vga.Page {
	mu.Lock()
	d := displayedTid
	mu.Unlock()
	if t.ID == d {
		return kernelPage
	}
	return t.Backing
}

// Write renders buf's bytes to whichever page is currently visible for
// this terminal.
func (t *Terminal) Write(buf []byte) int {
	page := t.outputPage()
	for _, b := range buf {
		page.PutChar(b)
	}
	return len(buf)
}

// BeginRead marks the terminal as awaiting a line of input and clears any
// stale buffered content.
func (t *Terminal) BeginRead() {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	t.kbLen = 0
	t.isReading = true
}

// IsReading reports whether a terminal_read is in progress.
func (t *Terminal) IsReading() bool {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	return t.isReading
}

// AppendKey appends ch to the pending input line if there is room.
func (t *Terminal) AppendKey(ch byte) {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	if !t.isReading || t.kbLen >= KeyboardBufSize {
		return
	}
	t.kbBuf[t.kbLen] = ch
	t.kbLen++
}

// Backspace retracts one character from the pending input line.
func (t *Terminal) Backspace() {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	if t.kbLen > 0 {
		t.kbLen--
	}
}

// EndRead terminates an in-progress read (called by the keyboard handler
// on Enter) and appends the trailing newline a shell's line-buffered read
// expects.
func (t *Terminal) EndRead() {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	if t.isReading && t.kbLen < KeyboardBufSize {
		t.kbBuf[t.kbLen] = '\n'
		t.kbLen++
	}
	t.isReading = false
}

// DrainLine busy-waits on a flag poll, with no blocking primitive
// involved, until EndRead clears isReading, then copies the completed
// line into buf and returns its length.
func (t *Terminal) DrainLine(buf []byte) int {
	t.BeginRead()
	for t.IsReading() {
		// Busy-wait for the keyboard handler's Enter to clear isReading.
	}
	t.readMu.Lock()
	defer t.readMu.Unlock()
	n := t.kbLen
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, t.kbBuf[:n])
	return n
}

// Clear blanks this terminal's visible page (Ctrl+L).
func (t *Terminal) Clear() {
	t.outputPage().Clear()
}
