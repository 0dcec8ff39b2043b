/*
 * pkos - Syscall bodies: halt, execute, read, write, open, close,
 * getargs, vidmap, and the set_handler/sigreturn stubs.
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

// Package syscall implements the bodies reachable through the software
// interrupt gate at vector 0x80: halt, execute, read, write, open,
// close, getargs, and vidmap, plus the always-failing set_handler and
// sigreturn stubs the ABI reserves but this kernel never implements.
package syscall

import (
	"errors"

	"github.com/archkernel/pkos/kernel/fd"
	"github.com/archkernel/pkos/kernel/fs"
	"github.com/archkernel/pkos/kernel/memory"
	"github.com/archkernel/pkos/kernel/proc"
	"github.com/archkernel/pkos/kernel/terminal"
)

// Call numbers carried in the fixed syscall-ABI register.
const (
	CallHalt = iota + 1
	CallExecute
	CallRead
	CallWrite
	CallOpen
	CallClose
	CallGetargs
	CallVidmap
	CallSetHandler
	CallSigreturn
)

// ExceptionHaltStatus is the sentinel EAX value a process sees in its
// parent when it died by exception rather than calling halt directly.
const ExceptionHaltStatus = 256

const (
	execMagic0 = 0x7F
	execMagic1 = 'E'
	execMagic2 = 'L'
	execMagic3 = 'F'
	eipOffset  = 24
)

var (
	ErrNotExecutable = errors.New("syscall: file is not executable")
	ErrNoFreeProcess = errors.New("syscall: process table full")
	ErrBadPointer    = errors.New("syscall: pointer outside caller's address window")
	ErrBadBuffer     = errors.New("syscall: argument buffer too small")
)

// Manager wires the syscall bodies to the filesystem image and the
// terminal a given caller's stdin/stdout should reach.
type Manager struct {
	FS *fs.FS
}

// NewManager returns a Manager backed by the given filesystem image.
func NewManager(filesystem *fs.FS) *Manager {
	return &Manager{FS: filesystem}
}

// executability is what determineExecutability learns about a candidate
// program: whether it's runnable, and if so its backing inode and entry
// point, read straight out of the ELF-style header this kernel expects.
type executability struct {
	ok    bool
	inode uint32
	eip   uint32
}

func (m *Manager) determineExecutability(name string) executability {
	d, err := m.FS.ReadDentryByName(name)
	if err != nil || d.Filetype != fs.TypeFile {
		return executability{}
	}

	var magic [4]byte
	if n, err := m.FS.ReadData(d.Inode, 0, magic[:], 4); err != nil || n != 4 {
		return executability{}
	}
	if magic[0] != execMagic0 || magic[1] != execMagic1 || magic[2] != execMagic2 || magic[3] != execMagic3 {
		return executability{}
	}

	var eipBuf [4]byte
	if n, err := m.FS.ReadData(d.Inode, eipOffset, eipBuf[:], 4); err != nil || n != 4 {
		return executability{}
	}
	eip := uint32(eipBuf[0]) | uint32(eipBuf[1])<<8 | uint32(eipBuf[2])<<16 | uint32(eipBuf[3])<<24
	return executability{ok: true, inode: d.Inode, eip: eip}
}

// loadOffset is the fixed virtual offset within a program page the
// executable image is copied to, conventionally 0x08048000 in absolute
// user-virtual terms (UserProgramVirt + loadOffset).
const loadOffset = 0x48000

// ExecuteResult is what Execute hands back to the scheduler/trap layer
// to either enter the new process or report failure to the caller.
type ExecuteResult struct {
	NewPID   int
	EntryEIP uint32
	UserESP  uint32
}

// Execute implements the execute syscall body. callerPid is the PID
// issuing the call; cmdline is the already-translated command string
// (the trap layer is responsible for the user-pointer translation and
// bounds check, since it alone holds the raw pointer value). On any
// failure, Execute performs the reverse-order rollback itself and
// returns an error; no side effect of a failed Execute is observable
// afterward.
func (m *Manager) Execute(callerPid int, cmdline string) (ExecuteResult, error) {
	parsed := parseCommand(cmdline)
	if parsed.Name == "" {
		return ExecuteResult{}, ErrNotExecutable
	}

	exec := m.determineExecutability(parsed.Name)
	if !exec.ok {
		return ExecuteResult{}, ErrNotExecutable
	}

	child := proc.Allocate(callerPid)
	if child == nil {
		return ExecuteResult{}, ErrNoFreeProcess
	}
	rollbackProc := func() { proc.Free(child.PID) }

	func() {
		defer func() { recover() }() // CreateProgramPage panics on double-create; never true here.
		memory.CreateProgramPage(child.PID)
	}()
	prevPaging := memory.CurrentUniversePagingState()
	memory.ActivateProgramPage(child.PID)
	rollbackPaging := func() {
		memory.DestroyProgramPage(child.PID)
		memory.LoadPagingStateToUniverse(prevPaging)
	}

	targetPhys, err := proc.TranslateUserToKernel(memory.UserProgramVirt+loadOffset, child.PID)
	if err != nil {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrBadPointer
	}

	length, err := m.FS.InodeLength(exec.inode)
	if err != nil {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrNotExecutable
	}
	image := make([]byte, length)
	if n, err := m.FS.ReadData(exec.inode, 0, image, length); err != nil || uint32(n) != length {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrNotExecutable
	}
	if err := memory.Physical.Write(targetPhys, image); err != nil {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrBadPointer
	}

	gotEIP, err := memory.Physical.ReadUint32(targetPhys + eipOffset)
	if err != nil || gotEIP != exec.eip {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrNotExecutable
	}

	stdin, stdout := m.stdioForCaller(callerPid)
	child.FDs = fd.NewTable(stdin, stdout)
	child.Args = parsed.Args
	child.EntryEIP = exec.eip
	child.EntryESP = memory.UserProgramVirt + memory.ProgramPageSize

	return ExecuteResult{NewPID: child.PID, EntryEIP: exec.eip, UserESP: child.EntryESP}, nil
}

// stdioForCaller derives stdin/stdout ops for a new child: the same
// terminal the caller's own task is active on.
func (m *Manager) stdioForCaller(callerPid int) (fd.Ops, fd.Ops) {
	tid := terminal.ActiveTid()
	term := terminal.Get(tid)
	if term == nil {
		term = terminal.Get(0)
	}
	return &fd.StdinOps{Term: term}, &fd.StdoutOps{Term: term}
}

// shellProgram is the name of the program each root PID boots into, one
// per terminal, matching the boot-time "every terminal starts a shell"
// rule.
const shellProgram = "shell"

// BootRoot primes a brand-new root PCB (ParentPID 0, so halt respawns it
// in place rather than tearing it down) with the shell program, wired to
// terminalID's own stdin/stdout rather than whatever terminal happens to
// be active - at boot time no task has run yet, so there is no "active"
// terminal to borrow.
func (m *Manager) BootRoot(terminalID int) (ExecuteResult, error) {
	exec := m.determineExecutability(shellProgram)
	if !exec.ok {
		return ExecuteResult{}, ErrNotExecutable
	}

	child := proc.Allocate(0)
	if child == nil {
		return ExecuteResult{}, ErrNoFreeProcess
	}
	rollbackProc := func() { proc.Free(child.PID) }

	func() {
		defer func() { recover() }() // CreateProgramPage panics on double-create; never true here.
		memory.CreateProgramPage(child.PID)
	}()
	memory.ActivateProgramPage(child.PID)
	rollbackPaging := func() { memory.DestroyProgramPage(child.PID) }

	targetPhys, err := proc.TranslateUserToKernel(memory.UserProgramVirt+loadOffset, child.PID)
	if err != nil {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrBadPointer
	}

	length, err := m.FS.InodeLength(exec.inode)
	if err != nil {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrNotExecutable
	}
	image := make([]byte, length)
	if n, err := m.FS.ReadData(exec.inode, 0, image, length); err != nil || uint32(n) != length {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrNotExecutable
	}
	if err := memory.Physical.Write(targetPhys, image); err != nil {
		rollbackPaging()
		rollbackProc()
		return ExecuteResult{}, ErrBadPointer
	}

	term := terminal.Get(terminalID)
	child.FDs = fd.NewTable(&fd.StdinOps{Term: term}, &fd.StdoutOps{Term: term})
	child.EntryEIP = exec.eip
	child.EntryESP = memory.UserProgramVirt + memory.ProgramPageSize
	proc.ResetRoot(child.PID, child.EntryEIP, child.EntryESP)

	return ExecuteResult{NewPID: child.PID, EntryEIP: exec.eip, UserESP: child.EntryESP}, nil
}

// HaltResult tells the caller (scheduler/trap layer) whether the exiting
// PID was respawned in place (a root shell) or actually torn down, and
// in the latter case which PID should now resume.
type HaltResult struct {
	Respawned bool
	ResumePID int
	Status    int
}

// Halt implements the halt syscall body (and is also the mechanism
// exceptions use to kill a task, by passing exceptionStatus true).
func (m *Manager) Halt(pid int, status uint8, exceptionStatus bool) HaltResult {
	self := proc.Get(pid)
	if self == nil {
		return HaltResult{}
	}
	self.FDs.CloseAll()

	if self.ParentPID == 0 {
		memory.ActivateProgramPage(pid)
		return HaltResult{Respawned: true, ResumePID: pid}
	}

	parentPID := self.ParentPID // self is zeroed by proc.Free below
	parent := proc.Get(parentPID)
	st := int(status)
	if exceptionStatus {
		st = ExceptionHaltStatus
	}

	if parent != nil && !parent.VidmapOn {
		memory.DeactivateUserVideo()
	}

	proc.Free(pid)
	memory.DestroyProgramPage(pid)
	if parent != nil {
		memory.ActivateProgramPage(parent.PID)
	}

	return HaltResult{Respawned: false, ResumePID: parentPID, Status: st}
}

// Read implements the read syscall body.
func (m *Manager) Read(pid, fdNum int, buf []byte) (int, error) {
	p := proc.Get(pid)
	if p == nil {
		return -1, ErrBadPointer
	}
	n, err := p.FDs.Read(fdNum, buf)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Write implements the write syscall body.
func (m *Manager) Write(pid, fdNum int, buf []byte) (int, error) {
	p := proc.Get(pid)
	if p == nil {
		return -1, ErrBadPointer
	}
	n, err := p.FDs.Write(fdNum, buf)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Open implements the open syscall body: it wires the name's dentry
// filetype to the matching operations table.
func (m *Manager) Open(pid int, name string) (int, error) {
	p := proc.Get(pid)
	if p == nil {
		return -1, ErrBadPointer
	}

	d, err := m.FS.ReadDentryByName(name)
	if err != nil {
		return -1, err
	}

	var ops fd.Ops
	switch d.Filetype {
	case fs.TypeDirectory:
		ops = &fd.DirOps{FS: m.FS}
	case fs.TypeDevice:
		ops = &fd.RTCOps{}
	default:
		ops = &fd.FileOps{FS: m.FS}
	}

	fdNum, err := p.FDs.Open(ops, name)
	if err != nil {
		return -1, err
	}
	return fdNum, nil
}

// Close implements the close syscall body.
func (m *Manager) Close(pid, fdNum int) error {
	p := proc.Get(pid)
	if p == nil {
		return ErrBadPointer
	}
	return p.FDs.Close(fdNum)
}

// Getargs implements the getargs syscall body: copies the cached
// argument string into buf, failing if it is empty or does not fit.
func (m *Manager) Getargs(pid int, buf []byte) error {
	p := proc.Get(pid)
	if p == nil {
		return ErrBadPointer
	}
	if p.Args == "" {
		return ErrBadBuffer
	}
	if len(p.Args)+1 > len(buf) {
		return ErrBadBuffer
	}
	n := copy(buf, p.Args)
	buf[n] = 0
	return nil
}

// Vidmap implements the vidmap syscall body: marks the caller's vidmap
// flag, maps the window present, and returns the fixed user virtual
// address of the window.
func (m *Manager) Vidmap(pid int) (uint32, error) {
	p := proc.Get(pid)
	if p == nil {
		return 0, ErrBadPointer
	}
	p.VidmapOn = true
	memory.ActivateUserVideo()
	return memory.UserVidmapVirt, nil
}

// SetHandler is a stub: signal delivery is out of scope, and the call
// always fails.
func (m *Manager) SetHandler(pid int, signum int, handlerAddr uint32) int { return -1 }

// Sigreturn is a stub: always fails, matching SetHandler.
func (m *Manager) Sigreturn(pid int) int { return -1 }
