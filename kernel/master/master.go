/*
 * pkos - Master event bus connecting device goroutines to the scheduler.
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

// Package master defines the Packet type carried on the channel that ties
// every asynchronous device goroutine (PIT ticker, RTC ticker) to the
// single-threaded kernel tick handler. The kernel loop also handles
// KeyPress packets, but no goroutine in this module posts one. Routing every
// hardware event through one channel, drained by one goroutine, is what
// gives the scheduler its "no two ticks processed concurrently" property
// for free - there is exactly one reader.
package master

// Msg identifies what kind of event a Packet carries.
type Msg int

const (
	_          Msg = iota
	PITTick        // PIT fired its ~20Hz tick.
	RTCTick        // RTC physical tick (virtualized per-process downstream).
	KeyPress       // Scan code arrived from the keyboard device.
	Shutdown       // Ask the kernel loop to stop.
)

// Packet is one event delivered on the master channel.
type Packet struct {
	Msg     Msg
	ScanRaw byte // Valid for KeyPress.
}

// Bus is a bounded channel of Packet. A modest buffer absorbs bursts (e.g.
// a run of key presses) without making a device goroutine block the CPU
// it is trying to interrupt.
type Bus chan Packet

// NewBus allocates a Bus with a small fixed buffer rather than an
// unbounded channel.
func NewBus() Bus {
	return make(Bus, 64)
}
