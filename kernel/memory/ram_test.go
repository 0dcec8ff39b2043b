/*
 * pkos - Simulated physical RAM test set.
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

import "testing"

func TestRAMWriteReadRoundTrip(t *testing.T) {
	r := &RAM{pages: make(map[uint32][]byte)}
	r.AllocatePage(0x1000, 256)

	in := []byte{1, 2, 3, 4}
	if err := r.Write(0x1000+16, in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := make([]byte, 4)
	if err := r.Read(0x1000+16, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("round trip mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRAMReadUnallocatedFails(t *testing.T) {
	r := &RAM{pages: make(map[uint32][]byte)}
	if err := r.Read(0x5000, make([]byte, 4)); err != ErrNoSuchPage {
		t.Errorf("expected ErrNoSuchPage, got %v", err)
	}
}

func TestRAMWritePastPageEndFails(t *testing.T) {
	r := &RAM{pages: make(map[uint32][]byte)}
	r.AllocatePage(0x2000, 16)
	if err := r.Write(0x2000+10, make([]byte, 10)); err != ErrNoSuchPage {
		t.Errorf("expected ErrNoSuchPage writing past the page end, got %v", err)
	}
}

func TestRAMReadUint32(t *testing.T) {
	r := &RAM{pages: make(map[uint32][]byte)}
	r.AllocatePage(0x3000, 16)
	r.Write(0x3000, []byte{0x78, 0x56, 0x34, 0x12})
	got, err := r.ReadUint32(0x3000)
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if got != 0x12345678 {
		t.Errorf("got %#x want %#x", got, 0x12345678)
	}
}

func TestFreePageRemovesBacking(t *testing.T) {
	r := &RAM{pages: make(map[uint32][]byte)}
	r.AllocatePage(0x4000, 16)
	r.FreePage(0x4000)
	if err := r.Read(0x4000, make([]byte, 4)); err != ErrNoSuchPage {
		t.Errorf("expected ErrNoSuchPage after FreePage, got %v", err)
	}
}
