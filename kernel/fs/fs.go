/*
 * pkos - Read-only in-memory filesystem image reader.
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

// Package fs reads the Multiboot module image that is the kernel's entire
// filesystem: a boot block of dentries, a block of inodes, then the data
// blocks themselves. There is no write path - the image is laid down once
// by the loader and never mutates.
package fs

import (
	"encoding/binary"
	"errors"
)

const (
	BlockSize    = 4096
	MaxDentries  = 62
	DentryLen    = 64
	NameLen      = 32
	maxDataBlock = (BlockSize - 4) / 4
)

// Filetype values a dentry can carry.
const (
	TypeDevice    = 0
	TypeDirectory = 1
	TypeFile      = 2
)

// Dentry is one directory entry.
type Dentry struct {
	Name     [NameLen]byte
	Filetype uint32
	Inode    uint32
}

// Inode is one file's metadata: its length and the data blocks holding it.
type Inode struct {
	Length uint32
	Blocks [maxDataBlock]uint32
}

// FS is a parsed filesystem image, backed by the raw module bytes.
type FS struct {
	image       []byte
	dentryCount uint32
	inodeCount  uint32
	blockCount  uint32
}

var (
	ErrBadImage  = errors.New("fs: malformed boot block")
	ErrNoEntry   = errors.New("fs: no such dentry")
	ErrBadInode  = errors.New("fs: invalid inode index")
	ErrBadBlock  = errors.New("fs: invalid data block reference")
)

// Load wraps a raw module image (as handed to the kernel by the boot
// loader at its mod_start address) for dentry/inode/data access.
func Load(image []byte) (*FS, error) {
	if len(image) < BlockSize {
		return nil, ErrBadImage
	}
	f := &FS{
		image:       image,
		dentryCount: binary.LittleEndian.Uint32(image[0:4]),
		inodeCount:  binary.LittleEndian.Uint32(image[4:8]),
		blockCount:  binary.LittleEndian.Uint32(image[8:12]),
	}
	if f.dentryCount > MaxDentries {
		return nil, ErrBadImage
	}
	need := BlockSize + int(f.inodeCount)*BlockSize + int(f.blockCount)*BlockSize
	if len(image) < need {
		return nil, ErrBadImage
	}
	return f, nil
}

// Dentries are packed immediately after the 64-byte boot-block header.
func (f *FS) dentryAt(i uint32) Dentry {
	off := 64 + int(i)*DentryLen
	var d Dentry
	copy(d.Name[:], f.image[off:off+NameLen])
	d.Filetype = binary.LittleEndian.Uint32(f.image[off+NameLen : off+NameLen+4])
	d.Inode = binary.LittleEndian.Uint32(f.image[off+NameLen+4 : off+NameLen+8])
	return d
}

// nameEquals is a bounded compare: both names must either terminate (hit
// a zero byte or exhaust) within 32 bytes, or both extend the full 32
// bytes - an unterminated field compares only its 32 bytes, never reads
// past them.
func nameEquals(want string, field [NameLen]byte) bool {
	if len(want) > NameLen {
		return false
	}
	for i := 0; i < NameLen; i++ {
		var w byte
		if i < len(want) {
			w = want[i]
		}
		if field[i] != w {
			return false
		}
	}
	return true
}

// ReadDentryByName linearly scans the dentry table for an exact,
// bounded-length name match.
func (f *FS) ReadDentryByName(name string) (Dentry, error) {
	for i := uint32(0); i < f.dentryCount; i++ {
		d := f.dentryAt(i)
		if nameEquals(name, d.Name) {
			return d, nil
		}
	}
	return Dentry{}, ErrNoEntry
}

// ReadDentryByIndex returns the i-th dentry.
func (f *FS) ReadDentryByIndex(i uint32) (Dentry, error) {
	if i >= f.dentryCount {
		return Dentry{}, ErrNoEntry
	}
	return f.dentryAt(i), nil
}

func (f *FS) inodeAt(i uint32) ([]byte, error) {
	if i >= f.inodeCount {
		return nil, ErrBadInode
	}
	off := BlockSize * (1 + int(i))
	return f.image[off : off+BlockSize], nil
}

// InodeLength returns the byte length recorded in inode i.
func (f *FS) InodeLength(i uint32) (uint32, error) {
	raw, err := f.inodeAt(i)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw[0:4]), nil
}

// ReadData copies up to length bytes of inode i's data starting at offset
// into buf, validating the inode and every data block id it references
// before copying any bytes, and stopping at end of file. It returns the
// number of bytes actually copied.
func (f *FS) ReadData(inode uint32, offset uint32, buf []byte, length uint32) (int, error) {
	raw, err := f.inodeAt(inode)
	if err != nil {
		return 0, err
	}
	flen := binary.LittleEndian.Uint32(raw[0:4])

	numBlocks := (flen + BlockSize - 1) / BlockSize
	for b := uint32(0); b < numBlocks; b++ {
		id := binary.LittleEndian.Uint32(raw[4+b*4 : 8+b*4])
		if id >= f.blockCount {
			return 0, ErrBadBlock
		}
	}

	if offset >= flen {
		return 0, nil
	}
	if length > flen-offset {
		length = flen - offset
	}
	if int(length) > len(buf) {
		length = uint32(len(buf))
	}

	copied := uint32(0)
	for copied < length {
		pos := offset + copied
		blockIdx := pos / BlockSize
		blockOff := pos % BlockSize
		id := binary.LittleEndian.Uint32(raw[4+blockIdx*4 : 8+blockIdx*4])
		dataOff := BlockSize * (1 + int(f.inodeCount) + int(id))
		n := uint32(BlockSize) - blockOff
		if n > length-copied {
			n = length - copied
		}
		copy(buf[copied:copied+n], f.image[dataOff+int(blockOff):dataOff+int(blockOff)+int(n)])
		copied += n
	}
	return int(copied), nil
}
