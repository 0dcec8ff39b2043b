/*
 * pkos - Real-time clock driver.
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

// Package rtc simulates the MC146818 real-time clock running at a fixed
// maximum physical rate. Each process virtualizes that rate down to a
// power-of-two frequency of its own choosing; the physical-to-virtual
// stride bookkeeping lives here, the per-process "tick has struck" flag
// lives on each open RTC descriptor (kernel/fd's RTCOps.Struck) since it
// is process state, not device state.
package rtc

import (
	"sync"
	"time"

	"github.com/archkernel/pkos/kernel/master"
	"github.com/archkernel/pkos/kernel/pic"
)

// IRQLine is the IRQ the RTC is wired to (cascaded, line 8).
const IRQLine uint8 = 8

// MaxRate is the fasted rate the simulated hardware can strike, in Hz.
// Valid virtual frequencies are powers of two in [MinRate, MaxRate].
const (
	MaxRate = 1024
	MinRate = 2
)

var (
	mu    sync.Mutex
	ticks uint64 // Physical tick counter since boot.
)

// IsValidFrequency reports whether freq is an acceptable argument to
// rtc_write: a power of two in [MinRate, MaxRate].
func IsValidFrequency(freq int) bool {
	if freq < MinRate || freq > MaxRate {
		return false
	}
	return freq&(freq-1) == 0
}

// StrideFor returns how many physical ticks separate virtual ticks at the
// given (already-validated) frequency.
func StrideFor(freq int) uint64 {
	return uint64(MaxRate / freq)
}

// Tick advances the physical tick counter by one and reports its new
// value, so callers can test (ticks % stride) == 0 per process.
func Tick() uint64 {
	mu.Lock()
	defer mu.Unlock()
	ticks++
	return ticks
}

// HandleTick is the RTC's interrupt handler body: it EOIs the line and
// advances the physical tick counter, returning the new count so the
// caller can stride-match it against every open fd's virtual frequency.
func HandleTick() uint64 {
	pic.SendEOI(IRQLine)
	return Tick()
}

// Timer drives a master.Bus at the RTC's maximum physical rate from a
// dedicated ticker goroutine. It only originates the tick; EOI and the
// physical counter advance happen in HandleTick, run by whatever
// services the posted packet.
type Timer struct {
	wg      sync.WaitGroup
	bus     master.Bus
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker
	running bool
}

// NewTimer creates and starts the RTC's background ticker goroutine. The
// timer does not post ticks until Start is called.
func NewTimer(bus master.Bus) *Timer {
	t := &Timer{
		bus:    bus,
		enable: make(chan bool, 1),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Start enables tick delivery.
func (t *Timer) Start() { t.enable <- true }

// Stop disables tick delivery without destroying the goroutine.
func (t *Timer) Stop() { t.enable <- false }

// Shutdown stops the background goroutine permanently.
func (t *Timer) Shutdown() {
	close(t.done)
	t.wg.Wait()
}

func (t *Timer) run() {
	defer t.wg.Done()
	t.ticker = time.NewTicker(time.Second / MaxRate)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.ticker.C:
			if t.running {
				t.bus <- master.Packet{Msg: master.RTCTick}
			}
		case t.running = <-t.enable:
		case <-t.done:
			return
		}
	}
}
