/*
 * pkos - Port I/O and critical sections.
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

// Package ioport simulates byte in/out to a 16-bit I/O port space and
// provides the scoped critical section every other kernel package builds
// mutation of shared state on top of.
package ioport

import "sync"

var (
	mu    sync.Mutex
	ports [1 << 16]uint8

	ifLock sync.Mutex
	ifFlag bool // Simulated EFLAGS.IF - true when interrupts are enabled.
	ifDepth int // Critical section nesting depth.
)

// In reads one byte from a simulated I/O port.
func In(port uint16) uint8 {
	mu.Lock()
	defer mu.Unlock()
	return ports[port]
}

// Out writes one byte to a simulated I/O port.
func Out(port uint16, value uint8) {
	mu.Lock()
	defer mu.Unlock()
	ports[port] = value
}

// InterruptsEnabled reports the simulated EFLAGS.IF bit.
func InterruptsEnabled() bool {
	ifLock.Lock()
	defer ifLock.Unlock()
	return ifFlag
}

// Critical runs fn with interrupts disabled, restoring the interrupt flag
// to whatever it was on entry regardless of how fn returns. Nesting is
// supported: only the outermost Critical call performs the enable/disable
// transition, so an inner call observes and restores the same (disabled)
// state the outer call established.
//
// fn must not attempt to leave the critical section by any path other than
// returning - there is no "early release" primitive.
func Critical(fn func()) {
	ifLock.Lock()
	wasEnabled := ifFlag
	nested := ifDepth > 0
	ifDepth++
	if !nested {
		ifFlag = false
	}
	ifLock.Unlock()

	defer func() {
		ifLock.Lock()
		ifDepth--
		if ifDepth == 0 {
			ifFlag = wasEnabled
		}
		ifLock.Unlock()
	}()

	fn()
}

// EnableInterrupts sets the simulated IF bit (STI). Only meaningful outside
// of a Critical section; within one, the restore on exit governs the flag.
func EnableInterrupts() {
	ifLock.Lock()
	defer ifLock.Unlock()
	if ifDepth == 0 {
		ifFlag = true
	}
}

// DisableInterrupts clears the simulated IF bit (CLI).
func DisableInterrupts() {
	ifLock.Lock()
	defer ifLock.Unlock()
	if ifDepth == 0 {
		ifFlag = false
	}
}
