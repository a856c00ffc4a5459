// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sched provides the cooperative scheduling primitives used by the
// conversation core: epoch tokens, a single-goroutine task loop, a Bubble Tea
// backed loop and a deterministic virtual-time scheduler for tests.
package sched

import (
	"sync/atomic"
	"time"
)

// =============================================================================
// EPOCH TOKENS
// =============================================================================

// Scope issues epoch tokens. Advancing the scope invalidates every token
// issued before, which is how stale timers and stream callbacks are dropped.
//
// A Scope is safe for concurrent use: timers read it from their own
// goroutines when deciding whether to post.
type Scope struct {
	gen atomic.Uint64
}

// NewScope creates a scope at epoch 0.
func NewScope() *Scope {
	return &Scope{}
}

// Token returns a token for the current epoch.
func (s *Scope) Token() Token {
	return Token{scope: s, gen: s.gen.Load()}
}

// Advance moves to the next epoch and returns its token.
func (s *Scope) Advance() Token {
	s.gen.Add(1)
	return s.Token()
}

// Epoch returns the current epoch number.
func (s *Scope) Epoch() uint64 {
	return s.gen.Load()
}

// Token stamps a scheduled task with the epoch it was created in.
// The zero Token is never invalidated.
type Token struct {
	scope *Scope
	gen   uint64
}

// Background is a token that is always valid.
var Background = Token{}

// Valid reports whether the token still belongs to its scope's current epoch.
func (t Token) Valid() bool {
	return t.scope == nil || t.scope.gen.Load() == t.gen
}

// Epoch returns the epoch the token was issued in.
func (t Token) Epoch() uint64 {
	return t.gen
}

// =============================================================================
// SCHEDULER INTERFACE
// =============================================================================

// Timer is a pending delayed task.
type Timer interface {
	// Stop prevents the task from being posted. It returns false if the task
	// already fired or was stopped.
	Stop() bool
}

// Scheduler runs tasks on a single logical thread. Tasks whose token went
// stale between scheduling and execution are dropped, never run.
type Scheduler interface {
	// Post queues fn to run on the loop.
	Post(tok Token, fn func())
	// After queues fn to run on the loop once d has elapsed.
	After(d time.Duration, tok Token, fn func()) Timer
	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}

// task is a unit of work waiting for the loop.
type task struct {
	tok Token
	fn  func()
}

// run executes the task if its token is still current.
func (t task) run() bool {
	if t.fn == nil || !t.tok.Valid() {
		return false
	}
	t.fn()
	return true
}
