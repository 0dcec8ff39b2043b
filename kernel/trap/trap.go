/*
 * pkos - Interrupt/exception/syscall vector dispatch.
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

// Package trap is the IDT analogue: a table of vector numbers to handler
// functions, each wrapped so it runs with the kernel page directory
// installed and the previous directory restored on exit, the way a real
// per-vector assembly trampoline and its C dispatcher would.
package trap

import (
	"log/slog"

	"github.com/archkernel/pkos/kernel/memory"
)

// Reserved vector numbers this kernel actually dispatches.
const (
	VecDivideError = 0
	VecPageFault   = 14
	VecGPFault     = 13

	VecPIT      = 0x20
	VecKeyboard = 0x21
	VecRTC      = 0x28

	VecSyscall = 0x80
)

// Privilege identifies which ring the trapped context came from.
type Privilege int

const (
	PrivilegeUser Privilege = iota
	PrivilegeKernel
)

// Segment selectors this kernel installs in a flat GDT: one kernel code
// segment and a user code/data pair. IRETFrame.CS carries whichever of
// these a saved universal state resumes into; any other value is
// malformed.
const (
	KernelCS uint32 = 0x08
	UserCS   uint32 = 0x1B
	UserDS   uint32 = 0x23
)

// EFLAGSInterruptEnable is the IF bit, forced on in every synthesized
// user entry frame so the new context resumes with interrupts enabled.
const EFLAGSInterruptEnable uint32 = 0x200

// Registers is the uniform GP-register block pushed by every trampoline.
type Registers struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP      uint32
}

// IRETFrame is the portion of the hardware context IRET consumes.
type IRETFrame struct {
	EIP, CS, EFLAGS uint32
	ESP, SS         uint32 // Only valid when Priv == PrivilegeUser.
}

// HardwareContext is the full frame a trampoline builds: vector, optional
// error code, segment selectors, GP registers, and the IRET frame.
type HardwareContext struct {
	Vector    int
	ErrorCode uint32
	DS, ES    uint32
	Regs      Registers
	IRET      IRETFrame
	Priv      Privilege
	ArenaPtr  uint32 // Simulated ESP-at-entry, for proc.DerivePID.
}

// Handler processes one trapped vector. It may mutate ctx in place (e.g.
// to rewrite EAX with a syscall's return value, or to splice in a
// parent's context on exception teardown).
type Handler func(ctx *HardwareContext)

var table = map[int]Handler{}

// Register installs fn as the handler for vector. Meant to be called
// once at boot per vector this kernel services.
func Register(vector int, fn Handler) {
	table[vector] = fn
}

// Dispatch is the single common dispatcher every trampoline funnels
// into: it installs the kernel directory, looks up and runs the
// vector's handler, then restores whatever directory was active before
// the trap. An unregistered vector is logged and otherwise ignored.
func Dispatch(ctx *HardwareContext) {
	prevWasUser := memory.EnterKernelDirectory()
	defer memory.RestoreDirectory(prevWasUser)

	fn, ok := table[ctx.Vector]
	if !ok {
		slog.Warn("trap: unhandled vector", "vector", ctx.Vector)
		return
	}
	fn(ctx)
}
