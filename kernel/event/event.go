/*
 * pkos - Relative-delay event queue.
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

// Package event is a small relative-delay event queue: each entry stores
// how many ticks remain until it fires *relative to the entry before it*,
// so advancing time by one tick is a single subtraction at the head
// rather than a scan of the whole queue. No other package in this module
// imports it; the RTC vector handler in cmd/pkos matches per-process
// virtual frequencies with rtc.StrideFor instead.
package event

// Callback runs when an event's delay reaches zero.
type Callback func(arg int)

// entry is one scheduled callback.
type entry struct {
	delay int
	cb    Callback
	arg   int
	prev  *entry
	next  *entry
}

// Queue is a list of pending events ordered by firing time.
type Queue struct {
	head *entry
	tail *entry
}

// Add schedules cb to run after delay ticks (or immediately, inline, if
// delay is zero).
func (q *Queue) Add(delay int, cb Callback, arg int) {
	if delay <= 0 {
		cb(arg)
		return
	}

	ev := &entry{delay: delay, cb: cb, arg: arg}

	cur := q.head
	if cur == nil {
		q.head, q.tail = ev, ev
		return
	}

	for cur != nil {
		if ev.delay <= cur.delay {
			cur.delay -= ev.delay
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				q.head = ev
			}
			return
		}
		ev.delay -= cur.delay
		cur = cur.next
	}

	ev.prev = q.tail
	q.tail.next = ev
	q.tail = ev
}

// Cancel removes the first pending event whose arg matches, if any. Args
// are expected to be unique among events a given caller has scheduled
// (e.g. a PID).
func (q *Queue) Cancel(arg int) {
	for cur := q.head; cur != nil; cur = cur.next {
		if cur.arg != arg {
			continue
		}
		if cur.next != nil {
			cur.next.delay += cur.delay
			cur.next.prev = cur.prev
		} else {
			q.tail = cur.prev
		}
		if cur.prev != nil {
			cur.prev.next = cur.next
		} else {
			q.head = cur.next
		}
		return
	}
}

// Any reports whether the queue has pending events.
func (q *Queue) Any() bool {
	return q.head != nil
}

// Advance moves time forward by t ticks, firing every event whose delay
// reaches zero or below, in order.
func (q *Queue) Advance(t int) {
	if q.head == nil {
		return
	}
	q.head.delay -= t
	for q.head != nil && q.head.delay <= 0 {
		cur := q.head
		cur.cb(cur.arg)
		q.head = cur.next
		if q.head != nil {
			q.head.prev = nil
			q.head.delay += cur.delay // carry the overshoot
		} else {
			q.tail = nil
		}
	}
}
