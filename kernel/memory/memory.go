/*
 * pkos - Paged address-space simulation.
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

// Package memory simulates the kernel's two page directories (kernel and
// user) and the handful of mappings the rest of the kernel needs: the
// fixed 1:1 kernel region, one 4 MiB process program page per running
// task, and a 4 KiB user vidmap window aliasing one of the video pages.
// The bytes of the program pages live in the sparse simulated RAM of
// ram.go (Physical); the filesystem image and the video pages own their
// own storage, and for those this package only tracks which physical
// window is currently visible where.
package memory

import "sync"

// Flag bits carried on a page-directory entry, named the way a real x86
// PDE would be, even though only a handful of entries are ever populated.
const (
	FlagPresent uint32 = 1 << 0
	FlagRW      uint32 = 1 << 1
	FlagUser    uint32 = 1 << 2
)

const (
	// KernelPageVirt and KernelPagePhys are the 1:1 4 MiB kernel window.
	KernelPageVirt = 0x400000
	KernelPagePhys = 0x400000

	// ProgramBasePhys is where the first process's program page lands;
	// pid N's window is ProgramBasePhys + (N-1)*ProgramPageSize.
	ProgramBasePhys = 0x800000
	ProgramPageSize = 4 * 1024 * 1024

	// UserProgramVirt is the fixed user-space address of the currently
	// mapped program page (conventionally 128 MiB).
	UserProgramVirt = 128 * 1024 * 1024

	// UserVidmapVirt is the fixed user-space address of the vidmap window.
	UserVidmapVirt = UserProgramVirt + ProgramPageSize
)

// entry is one simulated page-directory slot: a physical frame address
// plus flags. A zero entry is not-present.
type entry struct {
	phys  uint32
	flags uint32
}

func (e entry) present() bool { return e.flags&FlagPresent != 0 }

// Directory is a page directory: the handful of slots this kernel ever
// populates, not a full 1024-entry x86 table.
type Directory struct {
	kernel  entry            // 1:1 kernel window, always present.
	program entry            // the process program-page slot.
	vidmap  entry            // the user vidmap window slot.
	slots   map[uint32]entry // kernel-directory only: one slot per live pid window.
}

var (
	mu        sync.Mutex
	kernelDir = &Directory{kernel: entry{phys: KernelPagePhys, flags: FlagPresent | FlagRW}}
	userDir   = &Directory{kernel: entry{phys: KernelPagePhys, flags: FlagPresent | FlagRW}}

	// currentUniverse is the directory installed in CR3 right now.
	currentUniverse = kernelDir

	// currentMappedPid is the pid (if any) whose window is mapped into
	// the user directory's program slot.
	currentMappedPid int
)

func init() {
	kernelDir.slots = make(map[uint32]entry)
}

// physForPid returns the physical base address of pid's 4 MiB window.
func physForPid(pid int) uint32 {
	return ProgramBasePhys + uint32(pid-1)*ProgramPageSize
}

// CreateProgramPage marks pid's physical window present in the kernel
// directory. It panics if the slot is already present, mirroring the
// fail-fast double-create the scheduler must never trigger.
func CreateProgramPage(pid int) {
	mu.Lock()
	defer mu.Unlock()

	phys := physForPid(pid)
	if e, ok := kernelDir.slots[phys]; ok && e.present() {
		panic("memory: program page already present for pid")
	}
	kernelDir.slots[phys] = entry{phys: phys, flags: FlagPresent | FlagRW}
	Physical.AllocatePage(phys, ProgramPageSize)
}

// DestroyProgramPage clears pid's kernel-directory presence bit. It
// panics if the slot was not present, since that indicates the PCB
// bookkeeping has already diverged from the page tables.
func DestroyProgramPage(pid int) {
	mu.Lock()
	defer mu.Unlock()

	phys := physForPid(pid)
	e, ok := kernelDir.slots[phys]
	if !ok || !e.present() {
		panic("memory: destroying absent program page")
	}
	delete(kernelDir.slots, phys)
	Physical.FreePage(phys)
}

// ActivateProgramPage points the user directory's program-page slot at
// pid's physical window, flushing the TLB.
func ActivateProgramPage(pid int) {
	mu.Lock()
	defer mu.Unlock()

	userDir.program = entry{phys: physForPid(pid), flags: FlagPresent | FlagRW | FlagUser}
	currentMappedPid = pid
	flushTLB()
}

// CurrentMappedPid returns the pid currently mapped into the user
// directory's program-page slot, or 0 if none.
func CurrentMappedPid() int {
	mu.Lock()
	defer mu.Unlock()
	return currentMappedPid
}

// ActivateUserVideo marks the user vidmap window present.
func ActivateUserVideo() {
	mu.Lock()
	defer mu.Unlock()
	userDir.vidmap.flags |= FlagPresent
	flushTLB()
}

// DeactivateUserVideo clears the user vidmap window's present bit.
func DeactivateUserVideo() {
	mu.Lock()
	defer mu.Unlock()
	userDir.vidmap.flags &^= FlagPresent
	flushTLB()
}

// validVideoPhys is the set of physical addresses SetUserVideoBase will
// accept: the kernel's own video page and the three terminal backings.
var validVideoPhys = map[uint32]bool{}

// RegisterVideoPage whitelists phys as a legal vidmap target. Called once
// at startup for the kernel video page and each terminal's backing page.
func RegisterVideoPage(phys uint32) {
	mu.Lock()
	defer mu.Unlock()
	validVideoPhys[phys] = true
}

// SetUserVideoBase points the vidmap window at phys, which must have been
// registered via RegisterVideoPage. Returns false and leaves the mapping
// untouched if phys was never registered.
func SetUserVideoBase(phys uint32) bool {
	mu.Lock()
	defer mu.Unlock()

	if !validVideoPhys[phys] {
		return false
	}
	flags := userDir.vidmap.flags & FlagPresent
	userDir.vidmap = entry{phys: phys, flags: flags | FlagRW | FlagUser}
	flushTLB()
	return true
}

// flushTLB is a no-op in this simulation: there is no cached translation
// to invalidate, but every mutator calls it anyway so the call sites read
// the way the original assembly does (mov cr3, cr3).
func flushTLB() {}

// IsUnsafePageWalk reports whether dereferencing the user virtual address
// addr would fault under the currently installed directory: unmapped, or,
// for the program and vidmap windows, mapped without the user bit. The
// kernel window is checked for presence only.
func IsUnsafePageWalk(addr uint32) bool {
	mu.Lock()
	defer mu.Unlock()

	switch {
	case addr >= KernelPageVirt && addr < KernelPageVirt+ProgramPageSize:
		return !currentUniverse.kernel.present()
	case addr >= UserProgramVirt && addr < UserProgramVirt+ProgramPageSize:
		e := currentUniverse.program
		return !e.present() || e.flags&FlagUser == 0
	case addr >= UserVidmapVirt && addr < UserVidmapVirt+0x1000:
		e := currentUniverse.vidmap
		return !e.present() || e.flags&FlagUser == 0
	default:
		return true
	}
}

// UniverseState is the paging half of a saved universal state: which
// directory is installed, the vidmap presence bit, and the program page
// mapping, restored atomically by the scheduler on a context switch.
type UniverseState struct {
	UseUserDirectory bool
	MappedPid        int
	VidmapPresent    bool
	VidmapPhys       uint32
}

// CurrentUniversePagingState captures the paging half of the currently
// running task's universal state.
func CurrentUniversePagingState() UniverseState {
	mu.Lock()
	defer mu.Unlock()
	return UniverseState{
		UseUserDirectory: currentUniverse == userDir,
		MappedPid:        currentMappedPid,
		VidmapPresent:    userDir.vidmap.present(),
		VidmapPhys:       userDir.vidmap.phys,
	}
}

// LoadPagingStateToUniverse installs s: program-page mapping, vidmap
// state, and CR3 (kernel vs. user directory), atomically from the
// scheduler's point of view since callers hold off preemption around it.
func LoadPagingStateToUniverse(s UniverseState) {
	mu.Lock()
	defer mu.Unlock()

	if s.MappedPid != 0 {
		userDir.program = entry{phys: physForPid(s.MappedPid), flags: FlagPresent | FlagRW | FlagUser}
	}
	currentMappedPid = s.MappedPid

	flags := uint32(0)
	if s.VidmapPresent {
		flags = FlagPresent
	}
	userDir.vidmap = entry{phys: s.VidmapPhys, flags: flags | FlagRW | FlagUser}

	if s.UseUserDirectory {
		currentUniverse = userDir
	} else {
		currentUniverse = kernelDir
	}
	flushTLB()
}

// EnterKernelDirectory switches CR3 to the kernel directory, reporting
// whether the user directory was active so the caller can restore it on
// exit. Used at
// the top of every interrupt/exception/syscall handler.
func EnterKernelDirectory() (prevWasUser bool) {
	mu.Lock()
	defer mu.Unlock()
	prevWasUser = currentUniverse == userDir
	currentUniverse = kernelDir
	return prevWasUser
}

// RestoreDirectory switches CR3 back to the user directory if
// prevWasUser is true, or leaves the kernel directory installed
// otherwise. Used at the bottom of every handler, paired with
// EnterKernelDirectory.
func RestoreDirectory(prevWasUser bool) {
	mu.Lock()
	defer mu.Unlock()
	if prevWasUser {
		currentUniverse = userDir
	} else {
		currentUniverse = kernelDir
	}
}
