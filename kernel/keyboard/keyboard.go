/*
 * pkos - PS/2 keyboard scan-code state machine.
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

// Package keyboard decodes PS/2 set-1 scan codes into either a plain
// character destined for the terminal buffer, or a hot-key action
// (Ctrl+L, Alt+F1/F2/F3) the kernel handles without touching the
// currently scheduled task.
package keyboard

import "github.com/archkernel/pkos/kernel/pic"

// IRQLine is the IRQ the keyboard controller is wired to.
const IRQLine uint8 = 1

// Scan codes of the modifier and special keys this driver tracks.
const (
	scLeftShift  = 0x2A
	scRightShift = 0x36
	scCtrl       = 0x1D
	scAlt        = 0x38
	scCapsLock   = 0x3A
	scBackspace  = 0x0E
	scEnter      = 0x1C
	scTab        = 0x0F
	scBreak      = 0x80 // Or'd into a make code to form its break code.
	scF1         = 0x3B
	scF2         = 0x3C
	scF3         = 0x3D
	scL          = 0x26
)

// Action describes what a decoded scan code should cause the kernel to do.
type Action int

const (
	ActionNone       Action = iota
	ActionChar              // Emit Char into the displayed terminal's buffer.
	ActionEnter              // Terminate an in-progress terminal_read.
	ActionBackspace          // Retract one character from the buffer.
	ActionClear              // Ctrl+L: clear the displayed terminal.
	ActionSwitchTerm         // Alt+F1/F2/F3: change the displayed terminal.
)

// Modifiers tracks the live shift/ctrl/alt/caps-lock state across calls to
// Decode. It is terminal-independent - one physical keyboard, regardless
// of which terminal is displayed or active.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Alt   bool
	Caps  bool
}

// Result is what Decode reports for one scan code.
type Result struct {
	Action Action
	Char   byte // Valid when Action == ActionChar.
	Term   int  // Valid when Action == ActionSwitchTerm (0, 1 or 2).
}

// keymap tables indexed by scan code; index 0 is unused so the common case
// "no entry" reads as a zero byte.
var (
	normalMap [0x60]byte
	shiftMap  [0x60]byte
)

func init() {
	rows := []struct {
		sc           byte
		lower, upper byte
	}{
		{0x02, '1', '!'}, {0x03, '2', '@'}, {0x04, '3', '#'}, {0x05, '4', '$'},
		{0x06, '5', '%'}, {0x07, '6', '^'}, {0x08, '7', '&'}, {0x09, '8', '*'},
		{0x0A, '9', '('}, {0x0B, '0', ')'}, {0x0C, '-', '_'}, {0x0D, '=', '+'},
		{0x10, 'q', 'Q'}, {0x11, 'w', 'W'}, {0x12, 'e', 'E'}, {0x13, 'r', 'R'},
		{0x14, 't', 'T'}, {0x15, 'y', 'Y'}, {0x16, 'u', 'U'}, {0x17, 'i', 'I'},
		{0x18, 'o', 'O'}, {0x19, 'p', 'P'}, {0x1A, '[', '{'}, {0x1B, ']', '}'},
		{0x1E, 'a', 'A'}, {0x1F, 's', 'S'}, {0x20, 'd', 'D'}, {0x21, 'f', 'F'},
		{0x22, 'g', 'G'}, {0x23, 'h', 'H'}, {0x24, 'j', 'J'}, {0x25, 'k', 'K'},
		{scL, 'l', 'L'}, {0x27, ';', ':'}, {0x28, '\'', '"'}, {0x29, '`', '~'},
		{0x2B, '\\', '|'}, {0x2C, 'z', 'Z'}, {0x2D, 'x', 'X'}, {0x2E, 'c', 'C'},
		{0x2F, 'v', 'V'}, {0x30, 'b', 'B'}, {0x31, 'n', 'N'}, {0x32, 'm', 'M'},
		{0x33, ',', '<'}, {0x34, '.', '>'}, {0x35, '/', '?'}, {0x39, ' ', ' '},
	}
	for _, r := range rows {
		normalMap[r.sc] = r.lower
		shiftMap[r.sc] = r.upper
	}
}

// Decode consumes one make-code byte and updates mods in place. Break
// codes (high bit set) clear modifier state and are otherwise ignored -
// this driver has no use for key-up events of ordinary keys.
func Decode(scan byte, mods *Modifiers) Result {
	isBreak := scan&scBreak != 0
	code := scan &^ scBreak

	switch code {
	case scLeftShift, scRightShift:
		mods.Shift = !isBreak
		return Result{}
	case scCtrl:
		mods.Ctrl = !isBreak
		return Result{}
	case scAlt:
		mods.Alt = !isBreak
		return Result{}
	case scCapsLock:
		if !isBreak {
			mods.Caps = !mods.Caps
		}
		return Result{}
	}

	if isBreak {
		return Result{}
	}

	switch code {
	case scEnter:
		return Result{Action: ActionEnter}
	case scBackspace:
		return Result{Action: ActionBackspace}
	case scTab:
		return Result{Action: ActionChar, Char: '\t'}
	case scF1, scF2, scF3:
		if mods.Alt {
			return Result{Action: ActionSwitchTerm, Term: int(code - scF1)}
		}
		return Result{}
	case scL:
		if mods.Ctrl {
			return Result{Action: ActionClear}
		}
	}

	upper := mods.Shift
	if isLetter(code) {
		upper = mods.Shift != mods.Caps
	}

	var ch byte
	if upper {
		ch = shiftMap[code]
	} else {
		ch = normalMap[code]
	}
	if ch == 0 || mods.Ctrl {
		return Result{}
	}
	return Result{Action: ActionChar, Char: ch}
}

func isLetter(code byte) bool {
	switch {
	case code >= 0x10 && code <= 0x19: // q..p
	case code >= 0x1E && code <= 0x26: // a..l
	case code >= 0x2C && code <= 0x32: // z..m
	default:
		return false
	}
	return true
}

// HandleIRQ EOIs the keyboard's line. The scan-code decode and buffer/
// terminal-switch side effects are applied by the caller, which owns the
// "temporarily route to the displayed terminal" rule of spec section 4.3
// that this package, having no notion of terminals, cannot enforce itself.
func HandleIRQ() {
	pic.SendEOI(IRQLine)
}
