/*
 * pkos - Cascaded 8259 PIC driver.
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

// Package pic simulates the cascaded master/slave 8259A pair: mask/unmask
// of the 16 IRQ lines and end-of-interrupt signaling.
package pic

import "github.com/archkernel/pkos/kernel/ioport"

// I/O port addresses of the master and slave PIC.
const (
	MasterCmdPort  uint16 = 0x20
	MasterDataPort uint16 = 0x21
	SlaveCmdPort   uint16 = 0xA0
	SlaveDataPort  uint16 = 0xA1
)

// ICW1 bits.
const (
	icw1ICW4 byte = 0x01
	icw1Init byte = 0x10
)

// ICW4 bits.
const icw48086 byte = 0x01

// OCW2 end-of-interrupt command.
const ocw2EOI byte = 0x20

// CascadeIRQ is the IRQ line the slave PIC is wired to on the master.
const CascadeIRQ uint8 = 2

var (
	masterMask uint8 = 0xFF
	slaveMask  uint8 = 0xFF
)

// Init programs both PICs with the standard ICW sequence, masks every
// line, then unmasks the master's cascade line so slave IRQs can reach
// the CPU.
func Init() {
	ioport.Out(MasterCmdPort, icw1Init|icw1ICW4)
	ioport.Out(SlaveCmdPort, icw1Init|icw1ICW4)
	ioport.Out(MasterDataPort, 0x20) // Master vector offset.
	ioport.Out(SlaveDataPort, 0x28)  // Slave vector offset.
	ioport.Out(MasterDataPort, 1<<CascadeIRQ)
	ioport.Out(SlaveDataPort, CascadeIRQ)
	ioport.Out(MasterDataPort, icw48086)
	ioport.Out(SlaveDataPort, icw48086)

	masterMask = 0xFF
	slaveMask = 0xFF
	ioport.Out(MasterDataPort, masterMask)
	ioport.Out(SlaveDataPort, slaveMask)

	EnableIRQ(CascadeIRQ)
}

// EnableIRQ unmasks line n (0..15). Out of range lines are ignored.
func EnableIRQ(n uint8) {
	if n > 15 {
		return
	}
	if n < 8 {
		masterMask &^= 1 << n
		ioport.Out(MasterDataPort, masterMask)
		return
	}
	slaveMask &^= 1 << (n - 8)
	ioport.Out(SlaveDataPort, slaveMask)
}

// DisableIRQ masks line n (0..15). Out of range lines are ignored.
func DisableIRQ(n uint8) {
	if n > 15 {
		return
	}
	if n < 8 {
		masterMask |= 1 << n
		ioport.Out(MasterDataPort, masterMask)
		return
	}
	slaveMask |= 1 << (n - 8)
	ioport.Out(SlaveDataPort, slaveMask)
}

// SendEOI acknowledges line n. Lines 8..15 also require an EOI to the
// master, since they arrive through the cascade line.
func SendEOI(n uint8) {
	if n > 15 {
		return
	}
	if n >= 8 {
		ioport.Out(SlaveCmdPort, ocw2EOI)
	}
	ioport.Out(MasterCmdPort, ocw2EOI)
}
