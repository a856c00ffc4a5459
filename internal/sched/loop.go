// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// TASK QUEUE
// =============================================================================

// queue is an unbounded FIFO of tasks. Posting never blocks, so tasks may
// post further tasks from inside the loop without deadlocking.
type queue struct {
	mu    sync.Mutex
	tasks []task
	wake  chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(t task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far.
func (q *queue) take() []task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	out := q.tasks
	q.tasks = nil
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// =============================================================================
// LOOP
// =============================================================================

// Loop is a single-goroutine event loop. All tasks run on the goroutine that
// called Run, in the order they were posted.
type Loop struct {
	q       *queue
	ran     atomic.Uint64
	dropped atomic.Uint64
}

// NewLoop creates an idle loop. Call Run to start executing tasks.
func NewLoop() *Loop {
	return &Loop{q: newQueue()}
}

// Post queues fn. Safe to call from any goroutine.
func (l *Loop) Post(tok Token, fn func()) {
	l.q.push(task{tok: tok, fn: fn})
}

// After posts fn once d has elapsed.
func (l *Loop) After(d time.Duration, tok Token, fn func()) Timer {
	return time.AfterFunc(d, func() {
		// Skip the round trip when the epoch already moved on.
		if !tok.Valid() {
			l.dropped.Add(1)
			return
		}
		l.Post(tok, fn)
	})
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.q.wake:
		}
	}
}

func (l *Loop) drain() {
	for {
		batch := l.q.take()
		if batch == nil {
			return
		}
		for _, t := range batch {
			if t.run() {
				l.ran.Add(1)
			} else {
				l.dropped.Add(1)
			}
		}
	}
}

// Stats returns the number of executed and dropped tasks.
func (l *Loop) Stats() (ran, dropped uint64) {
	return l.ran.Load(), l.dropped.Load()
}
