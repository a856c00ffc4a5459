// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sched

import (
	"container/heap"
	"time"
)

// =============================================================================
// VIRTUAL SCHEDULER
// =============================================================================

// Virtual is a deterministic scheduler driven by explicit calls to Advance.
// Tasks due at the same instant run in the order they were scheduled.
//
// Virtual is not safe for concurrent use; drive it from one goroutine.
type Virtual struct {
	now     time.Time
	seq     uint64
	pending vqueue
	ran     int
	dropped int
}

// NewVirtual creates a virtual scheduler starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

type vtask struct {
	task
	due     time.Time
	seq     uint64
	index   int
	stopped bool
}

// Stop cancels the task if it has not run yet.
func (t *vtask) Stop() bool {
	if t.stopped || t.index < 0 {
		return false
	}
	t.stopped = true
	return true
}

// Post queues fn at the current virtual time.
func (v *Virtual) Post(tok Token, fn func()) {
	v.schedule(0, tok, fn)
}

// After queues fn d after the current virtual time.
func (v *Virtual) After(d time.Duration, tok Token, fn func()) Timer {
	return v.schedule(d, tok, fn)
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	return v.now
}

func (v *Virtual) schedule(d time.Duration, tok Token, fn func()) *vtask {
	if d < 0 {
		d = 0
	}
	v.seq++
	t := &vtask{task: task{tok: tok, fn: fn}, due: v.now.Add(d), seq: v.seq}
	heap.Push(&v.pending, t)
	return t
}

// Advance moves virtual time forward by d, running every task that falls due
// on the way, including tasks scheduled by those tasks. It returns the number
// of tasks that ran.
func (v *Virtual) Advance(d time.Duration) int {
	target := v.now.Add(d)
	n := 0
	for v.pending.Len() > 0 {
		next := v.pending[0]
		if next.due.After(target) {
			break
		}
		heap.Pop(&v.pending)
		if next.due.After(v.now) {
			v.now = next.due
		}
		if next.stopped {
			continue
		}
		if next.run() {
			n++
			v.ran++
		} else {
			v.dropped++
		}
	}
	v.now = target
	return n
}

// Flush runs tasks that are due right now.
func (v *Virtual) Flush() int {
	return v.Advance(0)
}

// RunUntilIdle keeps advancing to the next due task until nothing is pending
// or limit tasks ran. It returns the number of tasks that ran.
func (v *Virtual) RunUntilIdle(limit int) int {
	n := 0
	for v.pending.Len() > 0 && n < limit {
		next := v.pending[0]
		step := next.due.Sub(v.now)
		if step < 0 {
			step = 0
		}
		ran := v.advanceOne(step)
		n += ran
	}
	return n
}

// advanceOne pops exactly one task after moving time by step.
func (v *Virtual) advanceOne(step time.Duration) int {
	v.now = v.now.Add(step)
	t := heap.Pop(&v.pending).(*vtask)
	if t.stopped {
		return 0
	}
	if t.run() {
		v.ran++
		return 1
	}
	v.dropped++
	return 0
}

// Pending returns the number of tasks not yet run or stopped.
func (v *Virtual) Pending() int {
	n := 0
	for _, t := range v.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Stats returns the number of executed and dropped tasks.
func (v *Virtual) Stats() (ran, dropped int) {
	return v.ran, v.dropped
}

// =============================================================================
// PRIORITY QUEUE
// =============================================================================

type vqueue []*vtask

func (q vqueue) Len() int { return len(q) }

func (q vqueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q vqueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *vqueue) Push(x any) {
	t := x.(*vtask)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *vqueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
