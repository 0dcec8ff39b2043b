/*
 * pkos - RTC driver test set.
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

package rtc

import (
	"testing"
	"time"

	"github.com/archkernel/pkos/kernel/master"
)

func TestIsValidFrequencyAcceptsPowersOfTwoInRange(t *testing.T) {
	for _, freq := range []int{2, 4, 8, 16, 1024} {
		if !IsValidFrequency(freq) {
			t.Errorf("expected %d to be a valid frequency", freq)
		}
	}
}

func TestIsValidFrequencyRejectsNonPowersAndOutOfRange(t *testing.T) {
	for _, freq := range []int{0, 1, 3, 2048, -2} {
		if IsValidFrequency(freq) {
			t.Errorf("expected %d to be rejected", freq)
		}
	}
}

func TestStrideForMatchesMaxRateRatio(t *testing.T) {
	if got := StrideFor(MaxRate); got != 1 {
		t.Errorf("got stride %d at max rate, want 1", got)
	}
	if got := StrideFor(MinRate); got != MaxRate/MinRate {
		t.Errorf("got stride %d at min rate, want %d", got, MaxRate/MinRate)
	}
}

func TestTickIncrementsMonotonically(t *testing.T) {
	first := Tick()
	second := Tick()
	if second != first+1 {
		t.Errorf("got ticks %d then %d, want consecutive", first, second)
	}
}

func TestHandleTickAdvancesCounter(t *testing.T) {
	before := Tick()
	after := HandleTick()
	if after != before+1 {
		t.Errorf("got tick %d after HandleTick, want %d", after, before+1)
	}
}

func TestTimerPostsNothingUntilStarted(t *testing.T) {
	bus := master.NewBus()
	timer := NewTimer(bus)
	defer timer.Shutdown()

	select {
	case pkt := <-bus:
		t.Errorf("got unexpected packet %+v before Start", pkt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTimerPostsRTCTickWhenStarted(t *testing.T) {
	bus := master.NewBus()
	timer := NewTimer(bus)
	defer timer.Shutdown()
	timer.Start()

	select {
	case pkt := <-bus:
		if pkt.Msg != master.RTCTick {
			t.Errorf("got msg %v, want RTCTick", pkt.Msg)
		}
	case <-time.After(50 * time.Millisecond):
		t.Error("timed out waiting for RTC tick")
	}
}
