// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sched

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// BUBBLE TEA LOOP
// =============================================================================

// WakeMsg tells the Bubble Tea model that tasks are waiting. The model must
// call Program.Drain when it receives one.
type WakeMsg struct{}

// Program schedules tasks onto a Bubble Tea program's Update loop.
//
// tea.Program.Send blocks until Update picks the message up, so calling it
// from inside Update would deadlock. Tasks are therefore queued here and only
// a WakeMsg travels through Send, from a separate goroutine.
type Program struct {
	q       *queue
	send    atomic.Pointer[func(tea.Msg)]
	ran     atomic.Uint64
	dropped atomic.Uint64
}

// NewProgram creates a scheduler that wakes the program through send,
// normally (*tea.Program).Send. send may be nil until SetSender is called.
func NewProgram(send func(tea.Msg)) *Program {
	p := &Program{q: newQueue()}
	p.SetSender(send)
	return p
}

// SetSender attaches the program once it has been constructed. It is safe to
// call while timers are posting; tasks queued before a sender is attached
// wait for the next wake.
func (p *Program) SetSender(send func(tea.Msg)) {
	if send == nil {
		p.send.Store(nil)
		return
	}
	p.send.Store(&send)
}

// Post queues fn and wakes the Update loop.
func (p *Program) Post(tok Token, fn func()) {
	p.q.push(task{tok: tok, fn: fn})
	if send := p.send.Load(); send != nil {
		go (*send)(WakeMsg{})
	}
}

// After posts fn once d has elapsed.
func (p *Program) After(d time.Duration, tok Token, fn func()) Timer {
	return time.AfterFunc(d, func() {
		if !tok.Valid() {
			p.dropped.Add(1)
			return
		}
		p.Post(tok, fn)
	})
}

// Now returns the wall clock time.
func (p *Program) Now() time.Time {
	return time.Now()
}

// Drain runs every queued task in FIFO order and returns how many ran.
// It must only be called from the Update goroutine.
func (p *Program) Drain() int {
	n := 0
	for {
		batch := p.q.take()
		if batch == nil {
			return n
		}
		for _, t := range batch {
			if t.run() {
				n++
				p.ran.Add(1)
			} else {
				p.dropped.Add(1)
			}
		}
	}
}

// Pending returns the number of queued tasks.
func (p *Program) Pending() int {
	return p.q.len()
}

// Stats returns the number of executed and dropped tasks.
func (p *Program) Stats() (ran, dropped uint64) {
	return p.ran.Load(), p.dropped.Load()
}
