/*
 * pkos - Simulated physical RAM backing mapped pages.
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

package memory

import (
	"errors"
	"sync"
)

// ErrNoSuchPage is returned when an access falls in a physical window
// that was never allocated via AllocatePage.
var ErrNoSuchPage = errors.New("memory: access to unallocated physical page")

// RAM is a sparse simulation of physical memory: pages are allocated on
// demand, sized to only what this kernel's 4 MiB-page windows actually
// need, and byte ranges within an allocated page can be read or written
// directly, standing in for what would otherwise be raw pointer
// dereferences
// through the installed page tables.
type RAM struct {
	mu    sync.Mutex
	pages map[uint32][]byte
}

// Physical is the kernel's single physical memory simulation.
var Physical = &RAM{pages: make(map[uint32][]byte)}

// AllocatePage backs the size-byte window starting at base with zeroed
// storage, replacing any prior allocation at that base.
func (r *RAM) AllocatePage(base uint32, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[base] = make([]byte, size)
}

// FreePage releases the storage backing the page at base.
func (r *RAM) FreePage(base uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pages, base)
}

// findLocked returns the page containing phys and phys's offset into it.
func (r *RAM) findLocked(phys uint32) ([]byte, uint32, bool) {
	for base, page := range r.pages {
		if phys >= base && phys < base+uint32(len(page)) {
			return page, phys - base, true
		}
	}
	return nil, 0, false
}

// Write copies data into physical memory starting at phys.
func (r *RAM) Write(phys uint32, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, off, ok := r.findLocked(phys)
	if !ok || int(off)+len(data) > len(page) {
		return ErrNoSuchPage
	}
	copy(page[off:], data)
	return nil
}

// Read copies len(buf) bytes from physical memory starting at phys.
func (r *RAM) Read(phys uint32, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, off, ok := r.findLocked(phys)
	if !ok || int(off)+len(buf) > len(page) {
		return ErrNoSuchPage
	}
	copy(buf, page[off:])
	return nil
}

// ReadUint32 reads one little-endian word at phys.
func (r *RAM) ReadUint32(phys uint32) (uint32, error) {
	var buf [4]byte
	if err := r.Read(phys, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}
