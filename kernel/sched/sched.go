/*
 * pkos - Round-robin PIT-driven scheduler.
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

// Package sched is the PIT-driven round-robin scheduler: a fixed ring of
// N task streams, one per terminal, each switched to in turn on every
// timer tick. It owns the "save the outgoing task's universal state,
// load the incoming task's" contract that keeps a preempted process
// resumable regardless of which privilege level it was running in.
package sched

import (
	"fmt"
	"sync"

	"github.com/archkernel/pkos/kernel/memory"
	"github.com/archkernel/pkos/kernel/pic"
	"github.com/archkernel/pkos/kernel/pit"
	"github.com/archkernel/pkos/kernel/proc"
	"github.com/archkernel/pkos/kernel/terminal"
	"github.com/archkernel/pkos/kernel/trap"
)

// schedState is the concrete type UniversalState.Registers holds once a
// task has been preempted at least once: its saved GP registers and
// IRET frame, tagged implicitly by the IRET frame's CS (user or
// kernel). A PCB that has never been preempted holds no schedState at
// all; its universal state is synthesized fresh from EntryEIP/EntryESP.
type schedState struct {
	regs trap.Registers
	iret trap.IRETFrame
}

// Ring is the fixed-size rotation of scheduled PIDs, one per terminal.
const Ring = terminal.Count

// Scheduler owns the ring of scheduled PIDs and the currently-running
// one.
type Scheduler struct {
	mu         sync.Mutex
	pids       [Ring]int
	pos        int
	firstTick  bool
	runningPid int
}

// New returns a Scheduler seeded with pids, one per terminal slot, in
// ring order. The first tick after New does not attempt to save any
// outgoing state, since nothing has run yet.
func New(pids [Ring]int) *Scheduler {
	return &Scheduler{pids: pids, firstTick: true, runningPid: pids[0]}
}

// RunningPID returns the PID the scheduler currently considers active.
func (s *Scheduler) RunningPID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningPid
}

// Tick runs one PIT-tick's worth of scheduling: EOI, save the outgoing
// task's universal state (paging directory, GP registers, and IRET
// frame, lifted straight out of ctx; skipped on the very first tick,
// since there is nothing to save yet), advance the ring, and load the
// incoming task's universal state back into ctx. Returns the newly
// running PID.
func (s *Scheduler) Tick(ctx *trap.HardwareContext) int {
	pic.SendEOI(pit.IRQLine)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.firstTick {
		if outgoing := proc.Get(s.runningPid); outgoing != nil {
			outgoing.Universal.Paging = memory.CurrentUniversePagingState()
			outgoing.Universal.Registers = schedState{regs: ctx.Regs, iret: ctx.IRET}
		}
	}
	s.firstTick = false

	s.pos = (s.pos + 1) % Ring
	next := s.pids[s.pos]
	s.runningPid = next

	terminal.SetActiveTerminal(s.pos)

	if incoming := proc.Get(next); incoming != nil {
		memory.LoadPagingStateToUniverse(incoming.Universal.Paging)
		restoreUniversal(ctx, incoming)
	}

	return next
}

// restoreUniversal loads incoming's saved registers and IRET frame into
// ctx. A PCB that has never been preempted carries no schedState yet,
// so its universal state is synthesized as a fresh user-mode entry into
// its cached EntryEIP/EntryESP instead. The saved IRET CS is the sole
// discriminant between the user and kernel variants; anything else
// means the saved universal state is corrupt.
func restoreUniversal(ctx *trap.HardwareContext, incoming *proc.PCB) {
	saved, ok := incoming.Universal.Registers.(schedState)
	if !ok {
		ctx.Regs = trap.Registers{}
		ctx.IRET = trap.IRETFrame{
			EIP:    incoming.EntryEIP,
			CS:     trap.UserCS,
			EFLAGS: trap.EFLAGSInterruptEnable,
			ESP:    incoming.EntryESP,
			SS:     trap.UserDS,
		}
		ctx.Priv = trap.PrivilegeUser
		return
	}

	ctx.Regs = saved.regs
	ctx.IRET = saved.iret
	switch saved.iret.CS {
	case trap.UserCS:
		ctx.Priv = trap.PrivilegeUser
	case trap.KernelCS:
		ctx.Priv = trap.PrivilegeKernel
	default:
		panic(fmt.Sprintf("sched: malformed saved CS %#x restoring pid %d", saved.iret.CS, incoming.PID))
	}
}

// Reseat replaces the ring slot currently holding oldPid with newPid,
// used when execute/halt change which PID a terminal's shell slot
// refers to.
func (s *Scheduler) Reseat(oldPid, newPid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pids {
		if p == oldPid {
			s.pids[i] = newPid
		}
	}
	if s.runningPid == oldPid {
		s.runningPid = newPid
	}
}
