/*
 * pkos - Programmable interval timer driver.
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

// Package pit simulates the 8253/8254 programmable interval timer,
// configured to tick at approximately 20Hz and drive the scheduler.
package pit

import (
	"sync"
	"time"

	"github.com/archkernel/pkos/kernel/master"
)

// IRQLine is the IRQ the PIT is wired to.
const IRQLine uint8 = 0

// Frequency the PIT is programmed to, a ~20Hz scheduler tick.
const Frequency = 20

// Timer drives a master.Bus at the PIT's programmed rate from a
// dedicated ticker goroutine.
type Timer struct {
	wg      sync.WaitGroup
	bus     master.Bus
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker
	running bool
}

// NewTimer creates and starts the PIT's background ticker goroutine. The
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
	t.ticker = time.NewTicker(time.Second / Frequency)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.ticker.C:
			if t.running {
				t.bus <- master.Packet{Msg: master.PITTick}
			}
		case t.running = <-t.enable:
		case <-t.done:
			return
		}
	}
}
