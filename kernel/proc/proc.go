/*
 * pkos - Process table, PCBs, and user/kernel pointer translation.
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

// Package proc is the fixed process table: PCB slots at known arena
// addresses (no allocator), kernel-stack-derived "who am I" lookup, and
// the user<->kernel pointer translation every syscall argument goes
// through. NMax bounds the number of simultaneously live processes,
// including the N_TERMS root shells.
package proc

import (
	"errors"
	"sync"

	"github.com/archkernel/pkos/kernel/fd"
	"github.com/archkernel/pkos/kernel/memory"
)

// NMax is the number of process arenas, PIDs 1..NMax. PID 0 is the
// kernel's own "root PCB" and has no arena of its own.
const NMax = 6

// ArenaBase and ArenaSize describe the simulated kernel-stack arenas: a
// PCB lives at the top of an 8 KiB arena, the stack grows down through
// the rest of it. Real ESP values don't exist in this simulation, so
// DerivePID takes a caller-supplied arena pointer instead of reading a
// CPU register, but performs the same mask-and-subtract arithmetic the
// spec calls for.
const (
	ArenaBase = 0x900000
	ArenaSize = 8 * 1024
)

var ErrInvalidPointer = errors.New("proc: pointer outside process's address window")

// MaxArgs bounds the parsed argument string length.
const MaxArgs = 128

// ExecContext is what halt needs to unwind an execute: the saved
// pre-syscall hardware context and kernel-stack context. The fields are
// opaque blobs from proc's point of view; kernel/syscall stores a
// trap.HardwareContext in Hardware on execute and type-asserts it back
// on halt.
type ExecContext struct {
	Hardware   interface{}
	StackState interface{}
}

// UniversalState is the scheduler's save/restore unit: register and
// paging state sufficient to resume a task exactly where it left off.
type UniversalState struct {
	Registers interface{}
	Paging    memory.UniverseState
}

// PCB is one process control block.
type PCB struct {
	PID        int
	ParentPID  int
	Present    bool
	FDs        *fd.Table
	Args       string
	PreSyscall ExecContext
	Universal  UniversalState
	VidmapOn   bool

	// EntryEIP/EntryESP cache the program's original entry point and
	// initial user stack pointer, needed to respawn a root PID in place
	// on halt rather than tearing it down.
	EntryEIP uint32
	EntryESP uint32
}

var (
	mu    sync.Mutex
	table [NMax + 1]PCB // index 0 unused as a PCB but valid as "no parent"
)

// arenaBase returns the simulated arena base address for pid.
func arenaBase(pid int) uint32 {
	return ArenaBase + uint32(pid-1)*ArenaSize
}

// DerivePID returns the PID owning the kernel stack arena containing
// arenaPtr, by masking off the low ArenaSize bits and mapping the
// resulting base back to a PID, the canonical "who am I running as"
// lookup, independent of any global "current pid" variable.
func DerivePID(arenaPtr uint32) (int, error) {
	base := arenaPtr &^ (ArenaSize - 1)
	if base < ArenaBase {
		return 0, ErrInvalidPointer
	}
	pid := int((base-ArenaBase)/ArenaSize) + 1
	if pid < 1 || pid > NMax {
		return 0, ErrInvalidPointer
	}
	return pid, nil
}

// CurrentArenaPointer returns an address inside pid's kernel-stack arena,
// suitable as a trap frame's ArenaPtr: the simulated counterpart of
// "whatever ESP happened to be when the trap fired", for callers that
// need to construct a HardwareContext on pid's behalf rather than
// capture one from a real trampoline.
func CurrentArenaPointer(pid int) uint32 {
	return arenaBase(pid) + ArenaSize - 64
}

// Allocate finds a free PID and marks it present with the given parent,
// returning the new PCB. Returns nil if the table is full.
func Allocate(parent int) *PCB {
	mu.Lock()
	defer mu.Unlock()

	for pid := 1; pid <= NMax; pid++ {
		if table[pid].Present {
			continue
		}
		table[pid] = PCB{PID: pid, ParentPID: parent, Present: true}
		return &table[pid]
	}
	return nil
}

// Get returns the PCB for pid, or nil if out of range or not present.
func Get(pid int) *PCB {
	mu.Lock()
	defer mu.Unlock()
	if pid < 1 || pid > NMax || !table[pid].Present {
		return nil
	}
	return &table[pid]
}

// Free clears pid's presence flag, releasing its slot.
func Free(pid int) {
	mu.Lock()
	defer mu.Unlock()
	if pid >= 1 && pid <= NMax {
		table[pid] = PCB{}
	}
}

// ResetRoot records a root PID's entry EIP and initial user ESP in its
// PCB, the values a root shell is respawned from in place when it halts.
// No other PCB field changes.
func ResetRoot(pid int, entryEIP, entryESP uint32) {
	mu.Lock()
	defer mu.Unlock()
	if pid < 1 || pid > NMax {
		return
	}
	p := &table[pid]
	p.EntryEIP, p.EntryESP = entryEIP, entryESP
}

// ForEach calls fn with the PID and FD table of every live process, in
// PID order. Used by device handlers that must reach every process's
// open descriptors (e.g. the RTC tick, which strikes every open RTC fd
// whose virtual frequency matches the current physical tick).
func ForEach(fn func(pid int, fds *fd.Table)) {
	mu.Lock()
	defer mu.Unlock()
	for pid := 1; pid <= NMax; pid++ {
		if table[pid].Present {
			fn(pid, table[pid].FDs)
		}
	}
}

// TranslateUserToKernel maps a user-space pointer (relative to the
// process's 4 MiB program-page window at memory.UserProgramVirt) to the
// corresponding physical address in pid's window. Returns an error if
// ptr falls outside that window.
func TranslateUserToKernel(ptr uint32, pid int) (uint32, error) {
	if ptr < memory.UserProgramVirt || ptr >= memory.UserProgramVirt+memory.ProgramPageSize {
		return 0, ErrInvalidPointer
	}
	offset := ptr - memory.UserProgramVirt
	phys := memory.ProgramBasePhys + uint32(pid-1)*memory.ProgramPageSize + offset
	return phys, nil
}

// TranslateKernelToUser is TranslateUserToKernel's inverse.
func TranslateKernelToUser(phys uint32, pid int) (uint32, error) {
	base := memory.ProgramBasePhys + uint32(pid-1)*memory.ProgramPageSize
	if phys < base || phys >= base+memory.ProgramPageSize {
		return 0, ErrInvalidPointer
	}
	return memory.UserProgramVirt + (phys - base), nil
}
