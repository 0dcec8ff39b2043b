/*
 * pkos - Scheduler test set.
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

package sched

import (
	"testing"

	"github.com/archkernel/pkos/kernel/proc"
	"github.com/archkernel/pkos/kernel/terminal"
	"github.com/archkernel/pkos/kernel/trap"
)

func init() {
	terminal.Init()
}

func TestTickRotatesRing(t *testing.T) {
	s := New([Ring]int{1, 2, 3})

	first := s.Tick(&trap.HardwareContext{})
	if first != 2 {
		t.Fatalf("expected pid 2 after the first tick, got %d", first)
	}
	second := s.Tick(&trap.HardwareContext{})
	if second != 3 {
		t.Fatalf("expected pid 3 after the second tick, got %d", second)
	}
	third := s.Tick(&trap.HardwareContext{})
	if third != 1 {
		t.Fatalf("expected ring to wrap to pid 1, got %d", third)
	}
}

func TestTickFollowsActiveTerminal(t *testing.T) {
	s := New([Ring]int{1, 2, 3})
	s.Tick(&trap.HardwareContext{})
	if terminal.ActiveTid() != 1 {
		t.Errorf("expected active terminal to follow ring position 1, got %d", terminal.ActiveTid())
	}
}

func TestReseatUpdatesRunningPid(t *testing.T) {
	s := New([Ring]int{1, 2, 3})
	s.Reseat(1, 10)
	if s.RunningPID() != 10 {
		t.Errorf("expected running pid updated by Reseat, got %d", s.RunningPID())
	}
}

func TestTickSynthesizesEntryFrameForNeverRunTask(t *testing.T) {
	resetProcTable(t)
	p := proc.Allocate(0)
	p.EntryEIP, p.EntryESP = 0xDEADBEEF, 0xB00B1E5

	s := New([Ring]int{99, p.PID, 100})
	ctx := &trap.HardwareContext{}
	s.Tick(ctx)

	if ctx.IRET.EIP != p.EntryEIP || ctx.IRET.ESP != p.EntryESP {
		t.Fatalf("expected synthesized entry frame %#x/%#x, got %#x/%#x", p.EntryEIP, p.EntryESP, ctx.IRET.EIP, ctx.IRET.ESP)
	}
	if ctx.IRET.CS != trap.UserCS || ctx.Priv != trap.PrivilegeUser {
		t.Errorf("expected a fresh user-mode entry frame, got CS=%#x priv=%v", ctx.IRET.CS, ctx.Priv)
	}
}

func TestTickSavesAndRestoresRegistersAcrossTheRing(t *testing.T) {
	resetProcTable(t)
	a := proc.Allocate(0)
	b := proc.Allocate(0)

	s := New([Ring]int{a.PID, b.PID, 100})

	// First tick: moves from a to b, nothing saved for a yet (firstTick).
	s.Tick(&trap.HardwareContext{})

	// Second tick: moves from b to the unused ring slot, saving b's
	// outgoing context so it can be handed back once the ring wraps.
	outgoing := &trap.HardwareContext{
		Regs: trap.Registers{EAX: 0x1234},
		IRET: trap.IRETFrame{EIP: 0x5000, CS: trap.UserCS, ESP: 0x6000, SS: trap.UserDS},
	}
	s.Tick(outgoing)

	// Third tick: wraps back to a, then b; b's restored frame should
	// match exactly what was saved when it was preempted.
	s.Tick(&trap.HardwareContext{})
	restored := &trap.HardwareContext{}
	s.Tick(restored)

	if restored.Regs.EAX != 0x1234 || restored.IRET.EIP != 0x5000 {
		t.Errorf("expected pid %d's saved state restored, got regs=%+v iret=%+v", b.PID, restored.Regs, restored.IRET)
	}
}

func TestTickPanicsOnMalformedSavedCS(t *testing.T) {
	resetProcTable(t)
	a := proc.Allocate(0)
	b := proc.Allocate(0)
	s := New([Ring]int{a.PID, b.PID, 100})

	s.Tick(&trap.HardwareContext{})
	s.Tick(&trap.HardwareContext{IRET: trap.IRETFrame{CS: 0xFF}})
	s.Tick(&trap.HardwareContext{})

	defer func() {
		if recover() == nil {
			t.Errorf("expected Tick to panic restoring a malformed saved CS")
		}
	}()
	s.Tick(&trap.HardwareContext{})
}

func resetProcTable(t *testing.T) {
	t.Helper()
	for pid := 1; pid <= proc.NMax; pid++ {
		proc.Free(pid)
	}
}
