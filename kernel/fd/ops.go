/*
 * pkos - Concrete file-descriptor operation tables.
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

package fd

import (
	"github.com/archkernel/pkos/kernel/fs"
	"github.com/archkernel/pkos/kernel/rtc"
	"github.com/archkernel/pkos/kernel/terminal"
)

// FileOps backs an open regular file: sequential reads advance ctx.Offset,
// writes are not supported (the filesystem is read-only).
type FileOps struct {
	FS *fs.FS
}

func (o *FileOps) Open(ctx *Context, name string) error {
	d, err := o.FS.ReadDentryByName(name)
	if err != nil {
		return err
	}
	ctx.Filetype = d.Filetype
	ctx.Inode = d.Inode
	ctx.Offset = 0
	return nil
}

func (o *FileOps) Close(ctx *Context) error { return nil }

func (o *FileOps) Read(ctx *Context, buf []byte) (int, error) {
	n, err := o.FS.ReadData(ctx.Inode, ctx.Offset, buf, uint32(len(buf)))
	if err != nil {
		return -1, err
	}
	ctx.Offset += uint32(n)
	return n, nil
}

func (o *FileOps) Write(ctx *Context, buf []byte) (int, error) { return -1, ErrNotSupported }

// DirOps backs the open directory: each Read call returns one more
// filename, by dentry index order, regardless of the requested length.
type DirOps struct {
	FS *fs.FS
}

func (o *DirOps) Open(ctx *Context, name string) error {
	d, err := o.FS.ReadDentryByName(name)
	if err != nil {
		return err
	}
	ctx.Filetype = d.Filetype
	ctx.Inode = 0
	ctx.Offset = 0
	return nil
}

func (o *DirOps) Close(ctx *Context) error { return nil }

func (o *DirOps) Read(ctx *Context, buf []byte) (int, error) {
	d, err := o.FS.ReadDentryByIndex(ctx.Offset)
	if err != nil {
		return 0, nil
	}
	ctx.Offset++

	name := d.Name[:]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	n := copy(buf, name)
	return n, nil
}

func (o *DirOps) Write(ctx *Context, buf []byte) (int, error) { return -1, ErrNotSupported }

// RTCOps backs an fd opened against the real-time clock device: Write
// sets the per-process virtual interrupt frequency, Read busy-waits for
// the next tick at that frequency.
type RTCOps struct {
	Freq   int
	Struck bool
}

func (o *RTCOps) Open(ctx *Context, name string) error {
	o.Freq = 2
	o.Struck = false
	return nil
}

func (o *RTCOps) Close(ctx *Context) error { return nil }

func (o *RTCOps) Read(ctx *Context, buf []byte) (int, error) {
	o.Struck = false
	for !o.Struck {
		// Busy-wait for the RTC physical handler's next matching Strike.
	}
	return 0, nil
}

// Strike is called by the RTC's physical tick handler for every process
// whose virtual period modulo-matches the current physical tick count.
func (o *RTCOps) Strike() { o.Struck = true }

func (o *RTCOps) Write(ctx *Context, buf []byte) (int, error) {
	if len(buf) < 4 {
		return -1, ErrNotSupported
	}
	freq := int(buf[0]) | int(buf[1])<<8 | int(buf[2])<<16 | int(buf[3])<<24
	if !rtc.IsValidFrequency(freq) {
		return -1, ErrNotSupported
	}
	o.Freq = freq
	return 4, nil
}

// StdinOps reads a completed input line from the owning terminal.
type StdinOps struct {
	Term *terminal.Terminal
}

func (o *StdinOps) Open(ctx *Context, name string) error  { return nil }
func (o *StdinOps) Close(ctx *Context) error              { return nil }
func (o *StdinOps) Read(ctx *Context, buf []byte) (int, error) {
	return o.Term.DrainLine(buf), nil
}
func (o *StdinOps) Write(ctx *Context, buf []byte) (int, error) { return -1, ErrNotSupported }

// StdoutOps writes to the owning terminal's visible page.
type StdoutOps struct {
	Term *terminal.Terminal
}

func (o *StdoutOps) Open(ctx *Context, name string) error { return nil }
func (o *StdoutOps) Close(ctx *Context) error             { return nil }
func (o *StdoutOps) Read(ctx *Context, buf []byte) (int, error) {
	return -1, ErrNotSupported
}
func (o *StdoutOps) Write(ctx *Context, buf []byte) (int, error) {
	return o.Term.Write(buf), nil
}
