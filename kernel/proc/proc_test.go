/*
 * pkos - Process table test set.
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

package proc

import (
	"testing"

	"github.com/archkernel/pkos/kernel/fd"
	"github.com/archkernel/pkos/kernel/memory"
)

func resetTable() {
	mu.Lock()
	table = [NMax + 1]PCB{}
	mu.Unlock()
}

func TestAllocateFindsLowestFreeSlot(t *testing.T) {
	resetTable()
	p1 := Allocate(0)
	if p1 == nil || p1.PID != 1 {
		t.Fatalf("expected pid 1, got %+v", p1)
	}
	p2 := Allocate(1)
	if p2 == nil || p2.PID != 2 || p2.ParentPID != 1 {
		t.Fatalf("expected pid 2 parented at 1, got %+v", p2)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	resetTable()
	for i := 0; i < NMax; i++ {
		if Allocate(0) == nil {
			t.Fatalf("unexpected nil allocating process %d", i)
		}
	}
	if Allocate(0) != nil {
		t.Errorf("expected nil allocating past NMax processes")
	}
}

func TestFreeReleasesSlot(t *testing.T) {
	resetTable()
	p := Allocate(0)
	Free(p.PID)
	if Get(p.PID) != nil {
		t.Errorf("expected freed pid to no longer be present")
	}
	p2 := Allocate(0)
	if p2.PID != p.PID {
		t.Errorf("expected freed slot to be reused, got %d want %d", p2.PID, p.PID)
	}
}

func TestForEachVisitsOnlyLivePIDsInOrder(t *testing.T) {
	resetTable()
	p1 := Allocate(0)
	p2 := Allocate(0)
	Free(p1.PID)

	var seen []int
	ForEach(func(pid int, fds *fd.Table) {
		seen = append(seen, pid)
	})
	if len(seen) != 1 || seen[0] != p2.PID {
		t.Errorf("got %v, want only pid %d", seen, p2.PID)
	}
}

func TestDerivePIDRoundTrip(t *testing.T) {
	for pid := 1; pid <= NMax; pid++ {
		esp := arenaBase(pid) + ArenaSize - 64 // somewhere inside the arena
		got, err := DerivePID(esp)
		if err != nil {
			t.Fatalf("DerivePID(pid %d): %v", pid, err)
		}
		if got != pid {
			t.Errorf("DerivePID round-trip mismatch: got %d want %d", got, pid)
		}
	}
}

func TestDerivePIDRejectsOutOfRange(t *testing.T) {
	if _, err := DerivePID(0); err == nil {
		t.Errorf("expected error deriving pid from address below ArenaBase")
	}
	past := arenaBase(NMax) + ArenaSize
	if _, err := DerivePID(past); err == nil {
		t.Errorf("expected error deriving pid from address past the last arena")
	}
}

func TestTranslateUserToKernelRoundTrip(t *testing.T) {
	const pid = 3
	userPtr := uint32(memory.UserProgramVirt + 0x1234)
	phys, err := TranslateUserToKernel(userPtr, pid)
	if err != nil {
		t.Fatalf("TranslateUserToKernel: %v", err)
	}
	back, err := TranslateKernelToUser(phys, pid)
	if err != nil {
		t.Fatalf("TranslateKernelToUser: %v", err)
	}
	if back != userPtr {
		t.Errorf("round trip mismatch: got %x want %x", back, userPtr)
	}
}

func TestTranslateUserToKernelRejectsOutOfWindow(t *testing.T) {
	if _, err := TranslateUserToKernel(0, 1); err != ErrInvalidPointer {
		t.Errorf("expected ErrInvalidPointer, got %v", err)
	}
	if _, err := TranslateUserToKernel(memory.UserProgramVirt+memory.ProgramPageSize, 1); err != ErrInvalidPointer {
		t.Errorf("expected ErrInvalidPointer one byte past the window, got %v", err)
	}
}
