/*
 * pkos - Vector 0x80 ABI dispatch and user-privilege exception teardown.
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

package syscall

import (
	"fmt"
	"log/slog"

	"github.com/archkernel/pkos/kernel/memory"
	"github.com/archkernel/pkos/kernel/proc"
	"github.com/archkernel/pkos/kernel/trap"
)

// maxCString bounds how far readCString will scan before giving up on
// finding a terminator, guarding against a malicious or wild user pointer
// turning a syscall argument into an unbounded physical-memory walk.
const maxCString = 256

// HandleSyscall is the vector 0x80 gate body. The fixed register
// convention: EAX carries the call number and, for every call but halt
// and execute, the return value; EBX/ECX/EDX carry up to three
// arguments. The caller PID is derived from the trap frame's ArenaPtr,
// never from a global "current process" variable. A call number outside
// 1..10 leaves EAX at -1.
func (m *Manager) HandleSyscall(ctx *trap.HardwareContext) {
	pid, err := proc.DerivePID(ctx.ArenaPtr)
	if err != nil {
		ctx.Regs.EAX = ^uint32(0) // -1
		return
	}

	switch ctx.Regs.EAX {
	case CallHalt:
		m.resumeAfterHalt(ctx, pid, uint8(ctx.Regs.EBX), false)
	case CallExecute:
		m.dispatchExecute(ctx, pid)
	default:
		ctx.Regs.EAX = uint32(int32(m.dispatchCall(pid, ctx.Regs)))
	}
}

// HandleException is registered for the fault vectors this kernel
// services at user privilege: divide error, general protection, page
// fault. A fault struck while already running at kernel privilege is
// unrecoverable, since the kernel's own state may be inconsistent, and
// is reported fatally rather than torn down.
func (m *Manager) HandleException(ctx *trap.HardwareContext) {
	if ctx.Priv != trap.PrivilegeUser {
		slog.Error("fatal kernel-privilege exception", "vector", ctx.Vector, "error_code", ctx.ErrorCode)
		panic(fmt.Sprintf("syscall: unrecoverable kernel-privilege exception, vector %#x", ctx.Vector))
	}

	pid, err := proc.DerivePID(ctx.ArenaPtr)
	if err != nil {
		return
	}
	m.resumeAfterHalt(ctx, pid, 0, true)
}

// resumeAfterHalt is the shared tail of an ordinary halt and an
// exception-driven teardown: run Halt, then rewrite ctx to reflect
// whichever resumption it produced. A root shell respawns in place, so
// ctx becomes a fresh user-mode entry frame; anything else resumes the
// parent's saved pre-execute context with EAX carrying the exit status.
func (m *Manager) resumeAfterHalt(ctx *trap.HardwareContext, pid int, status uint8, exceptionStatus bool) {
	result := m.Halt(pid, status, exceptionStatus)

	if result.Respawned {
		self := proc.Get(result.ResumePID)
		ctx.Regs = trap.Registers{}
		ctx.IRET = trap.IRETFrame{
			EIP:    self.EntryEIP,
			CS:     trap.UserCS,
			EFLAGS: trap.EFLAGSInterruptEnable,
			ESP:    self.EntryESP,
			SS:     trap.UserDS,
		}
		ctx.Priv = trap.PrivilegeUser
		return
	}

	if parent := proc.Get(result.ResumePID); parent != nil {
		if saved, ok := parent.PreSyscall.Hardware.(trap.HardwareContext); ok {
			*ctx = saved
		}
	}
	ctx.Regs.EAX = uint32(int32(result.Status))
}

// dispatchExecute is execute's own special case: on success the trap
// frame stops representing the caller at all and becomes a fresh entry
// into the child, so the caller's own EAX is never set - it only
// resumes, with a return value, once the child eventually halts or
// excepts and resumeAfterHalt splices its saved PreSyscall context back
// in.
func (m *Manager) dispatchExecute(ctx *trap.HardwareContext, pid int) {
	phys, err := proc.TranslateUserToKernel(ctx.Regs.EBX, pid)
	if err != nil {
		ctx.Regs.EAX = ^uint32(0) // -1
		return
	}
	cmdline, err := readCString(phys, maxCString)
	if err != nil {
		ctx.Regs.EAX = ^uint32(0) // -1
		return
	}
	caller := proc.Get(pid)
	if caller == nil {
		ctx.Regs.EAX = ^uint32(0) // -1
		return
	}

	saved := *ctx
	res, err := m.Execute(pid, cmdline)
	if err != nil {
		ctx.Regs.EAX = ^uint32(0) // -1
		return
	}
	caller.PreSyscall = proc.ExecContext{Hardware: saved}

	ctx.Regs = trap.Registers{}
	ctx.IRET = trap.IRETFrame{
		EIP:    res.EntryEIP,
		CS:     trap.UserCS,
		EFLAGS: saved.IRET.EFLAGS | trap.EFLAGSInterruptEnable,
		ESP:    res.UserESP,
		SS:     trap.UserDS,
	}
	ctx.Priv = trap.PrivilegeUser
}

// dispatchCall services every call number but halt and execute, which
// HandleSyscall handles directly since neither returns a value into the
// calling frame the ordinary way. Any number outside 1..10 falls to the
// default and returns -1.
func (m *Manager) dispatchCall(pid int, regs trap.Registers) int32 {
	switch regs.EAX {
	case CallRead:
		return m.dispatchReadWrite(pid, regs, false)
	case CallWrite:
		return m.dispatchReadWrite(pid, regs, true)
	case CallOpen:
		return m.dispatchOpen(pid, regs)
	case CallClose:
		if err := m.Close(pid, int(regs.EBX)); err != nil {
			return -1
		}
		return 0
	case CallGetargs:
		return m.dispatchGetargs(pid, regs)
	case CallVidmap:
		return m.dispatchVidmap(pid, regs)
	case CallSetHandler:
		return int32(m.SetHandler(pid, int(regs.EBX), regs.ECX))
	case CallSigreturn:
		return int32(m.Sigreturn(pid))
	default:
		return -1
	}
}

func (m *Manager) dispatchReadWrite(pid int, regs trap.Registers, isWrite bool) int32 {
	fdNum := int(regs.EBX)
	length := regs.EDX
	phys, err := m.translateBuf(pid, regs.ECX, length)
	if err != nil {
		return -1
	}

	if isWrite {
		buf := make([]byte, length)
		if err := memory.Physical.Read(phys, buf); err != nil {
			return -1
		}
		n, err := m.Write(pid, fdNum, buf)
		if err != nil {
			return -1
		}
		return int32(n)
	}

	buf := make([]byte, length)
	n, err := m.Read(pid, fdNum, buf)
	if err != nil {
		return -1
	}
	if err := memory.Physical.Write(phys, buf[:n]); err != nil {
		return -1
	}
	return int32(n)
}

func (m *Manager) dispatchOpen(pid int, regs trap.Registers) int32 {
	phys, err := proc.TranslateUserToKernel(regs.EBX, pid)
	if err != nil {
		return -1
	}
	name, err := readCString(phys, maxCString)
	if err != nil {
		return -1
	}
	fdNum, err := m.Open(pid, name)
	if err != nil {
		return -1
	}
	return int32(fdNum)
}

func (m *Manager) dispatchGetargs(pid int, regs trap.Registers) int32 {
	length := regs.ECX
	phys, err := m.translateBuf(pid, regs.EBX, length)
	if err != nil {
		return -1
	}
	buf := make([]byte, length)
	if err := m.Getargs(pid, buf); err != nil {
		return -1
	}
	if err := memory.Physical.Write(phys, buf); err != nil {
		return -1
	}
	return 0
}

func (m *Manager) dispatchVidmap(pid int, regs trap.Registers) int32 {
	phys, err := proc.TranslateUserToKernel(regs.EBX, pid)
	if err != nil {
		return -1
	}
	addr, err := m.Vidmap(pid)
	if err != nil {
		return -1
	}
	buf := []byte{byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24)}
	if err := memory.Physical.Write(phys, buf); err != nil {
		return -1
	}
	return 0
}

// translateBuf translates a user pointer the same way TranslateUserToKernel
// does, additionally rejecting a buffer whose length would run past the
// end of the caller's program-page window.
func (m *Manager) translateBuf(pid int, ptr, length uint32) (uint32, error) {
	phys, err := proc.TranslateUserToKernel(ptr, pid)
	if err != nil {
		return 0, err
	}
	if length > memory.ProgramPageSize || ptr-memory.UserProgramVirt+length > memory.ProgramPageSize {
		return 0, ErrBadPointer
	}
	return phys, nil
}

// readCString reads a NUL-terminated string out of physical memory
// starting at phys, one byte at a time, giving up with an error if no
// terminator turns up within maxLen bytes.
func readCString(phys uint32, maxLen int) (string, error) {
	buf := make([]byte, 0, 32)
	var b [1]byte
	for i := 0; i < maxLen; i++ {
		if err := memory.Physical.Read(phys+uint32(i), b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", ErrBadBuffer
}
