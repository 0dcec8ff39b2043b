/*
 * pkos - Syscall body test set.
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
	"encoding/binary"
	"testing"

	"github.com/archkernel/pkos/kernel/fd"
	"github.com/archkernel/pkos/kernel/fs"
	"github.com/archkernel/pkos/kernel/proc"
	"github.com/archkernel/pkos/kernel/terminal"
)

func init() {
	terminal.Init()
}

// buildFSImage lays out a "shell" executable (valid ELF-style magic and
// EIP word) and a "frame0.txt" regular file that is not executable, the
// way the boot-scenario fixture in spec section 8 describes.
func buildFSImage(t *testing.T) *fs.FS {
	t.Helper()

	const inodeCount = 2
	const blockCount = 4
	image := make([]byte, fs.BlockSize+inodeCount*fs.BlockSize+blockCount*fs.BlockSize)

	binary.LittleEndian.PutUint32(image[0:4], 2)
	binary.LittleEndian.PutUint32(image[4:8], inodeCount)
	binary.LittleEndian.PutUint32(image[8:12], blockCount)

	putDentry := func(idx int, name string, ftype, inode uint32) {
		off := 64 + idx*fs.DentryLen
		copy(image[off:off+fs.NameLen], name)
		binary.LittleEndian.PutUint32(image[off+fs.NameLen:off+fs.NameLen+4], ftype)
		binary.LittleEndian.PutUint32(image[off+fs.NameLen+4:off+fs.NameLen+8], inode)
	}
	putDentry(0, "shell", fs.TypeFile, 0)
	putDentry(1, "frame0.txt", fs.TypeFile, 1)

	shellLen := uint32(64)
	shell := make([]byte, shellLen)
	shell[0], shell[1], shell[2], shell[3] = 0x7F, 'E', 'L', 'F'
	binary.LittleEndian.PutUint32(shell[24:28], 0x08048123)

	inode0Off := fs.BlockSize + 0*fs.BlockSize
	binary.LittleEndian.PutUint32(image[inode0Off:inode0Off+4], shellLen)
	binary.LittleEndian.PutUint32(image[inode0Off+4:inode0Off+8], 0) // block 0
	dataBase := fs.BlockSize + inodeCount*fs.BlockSize
	copy(image[dataBase:dataBase+len(shell)], shell)

	notExec := []byte("just some text, not an executable at all")
	inode1Off := fs.BlockSize + 1*fs.BlockSize
	binary.LittleEndian.PutUint32(image[inode1Off:inode1Off+4], uint32(len(notExec)))
	binary.LittleEndian.PutUint32(image[inode1Off+4:inode1Off+8], 1) // block 1
	copy(image[dataBase+fs.BlockSize:dataBase+fs.BlockSize+len(notExec)], notExec)

	f, err := fs.Load(image)
	if err != nil {
		t.Fatalf("fs.Load: %v", err)
	}
	return f
}

func TestParseCommandSplitsNameAndArgs(t *testing.T) {
	p := parseCommand("  shell arg1 arg2  ")
	if p.Name != "shell" {
		t.Errorf("got name %q want shell", p.Name)
	}
	if p.Args != "arg1 arg2  " {
		t.Errorf("got args %q", p.Args)
	}
}

func TestParseCommandEmptyLine(t *testing.T) {
	p := parseCommand("   ")
	if p.Name != "" {
		t.Errorf("expected empty name for an all-space line, got %q", p.Name)
	}
}

func TestDetermineExecutabilityRejectsNonMagicFile(t *testing.T) {
	m := NewManager(buildFSImage(t))
	if _, err := m.Execute(0, "frame0.txt"); err != ErrNotExecutable {
		t.Errorf("expected ErrNotExecutable for frame0.txt, got %v", err)
	}
}

func TestExecuteHappyPath(t *testing.T) {
	m := NewManager(buildFSImage(t))
	proc.Allocate(0) // seed a root caller pid (returns pid 1)

	res, err := m.Execute(1, "shell")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.EntryEIP != 0x08048123 {
		t.Errorf("got entry eip %#x want %#x", res.EntryEIP, 0x08048123)
	}
	if res.NewPID == 0 {
		t.Errorf("expected a nonzero new pid")
	}
}

func TestGetargsRoundTrip(t *testing.T) {
	m := NewManager(buildFSImage(t))
	p := proc.Allocate(0)
	p.Args = "hello world"

	buf := make([]byte, 32)
	if err := m.Getargs(p.PID, buf); err != nil {
		t.Fatalf("Getargs: %v", err)
	}
	n := 0
	for buf[n] != 0 {
		n++
	}
	if string(buf[:n]) != "hello world" {
		t.Errorf("got %q", buf[:n])
	}
}

func TestGetargsRejectsEmptyArgs(t *testing.T) {
	m := NewManager(buildFSImage(t))
	p := proc.Allocate(0)
	if err := m.Getargs(p.PID, make([]byte, 32)); err != ErrBadBuffer {
		t.Errorf("expected ErrBadBuffer for empty args, got %v", err)
	}
}

func TestOpenCloseFDExhaustionAndReuse(t *testing.T) {
	m := NewManager(buildFSImage(t))
	p := proc.Allocate(0)
	term := terminal.Get(0)
	p.FDs = fd.NewTable(&fd.StdinOps{Term: term}, &fd.StdoutOps{Term: term})

	var last int
	for i := 0; i < 6; i++ {
		fdNum, err := m.Open(p.PID, "shell")
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		last = fdNum
	}
	if _, err := m.Open(p.PID, "shell"); err == nil {
		t.Errorf("expected the 7th open to fail")
	}
	if err := m.Close(p.PID, last); err != nil {
		t.Fatalf("Close: %v", err)
	}
	fdNum, err := m.Open(p.PID, "shell")
	if err != nil || fdNum != last {
		t.Errorf("expected freed slot %d reused, got %d err=%v", last, fdNum, err)
	}
}
