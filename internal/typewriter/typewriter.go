// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package typewriter reveals completed assistant chunks one character at a
// time at a fixed cadence, independent of how the chunk arrived.
//
// A character is a grapheme cluster, so emoji and combining sequences are
// never split mid-way.
package typewriter

import (
	"log/slog"
	"time"

	"github.com/rivo/uniseg"
	"golang.org/x/time/rate"

	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
)

// DefaultInterval is the delay between two revealed characters.
const DefaultInterval = 20 * time.Millisecond

// Writer is the store surface the renderer mutates through.
type Writer interface {
	AdvanceReveal(id, revealed string) error
	FinishReveal(id string) error
}

// State is the reveal state of a single item.
type State int

const (
	StateIdle      State = iota // Not started yet
	StateRevealing              // Ticking
	StateDone                   // Fully revealed
)

// String returns a short name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRevealing:
		return "revealing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// StateOf derives the reveal state of an item from a snapshot.
func StateOf(it model.Item) State {
	switch {
	case !it.Typed || it.RevealDone():
		return StateDone
	case it.RevealedText == "":
		return StateIdle
	default:
		return StateRevealing
	}
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer drives one reveal at a time. It is owned by the conversation loop.
type Renderer struct {
	w        Writer
	sched    sched.Scheduler
	scope    *sched.Scope
	interval time.Duration
	logger   *slog.Logger
	sampler  rate.Sometimes

	current string // ID of the item being revealed, "" when idle
	text    string
	pos     int // byte offset of the revealed prefix
	timer   sched.Timer
	ticks   uint64
}

// New creates a renderer that writes through w and ticks on s.
func New(w Writer, s sched.Scheduler, interval time.Duration, logger *slog.Logger) *Renderer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		w:        w,
		sched:    s,
		scope:    sched.NewScope(),
		interval: interval,
		logger:   logger.With("component", "typewriter"),
		sampler:  rate.Sometimes{First: 1, Interval: time.Second},
	}
}

// Interval returns the tick cadence.
func (r *Renderer) Interval() time.Duration {
	return r.interval
}

// SetInterval changes the cadence from the next tick on.
func (r *Renderer) SetInterval(d time.Duration) {
	if d > 0 {
		r.interval = d
	}
}

// Active returns the ID of the item being revealed, or "".
func (r *Renderer) Active() string {
	return r.current
}

// Ticks returns the number of characters revealed so far.
func (r *Renderer) Ticks() uint64 {
	return r.ticks
}

// Observe reacts to a new snapshot. Subscribe it to the conversation store.
func (r *Renderer) Observe(snap model.Snapshot) {
	// Our item vanished (reset) or was finished by someone else.
	if r.current != "" {
		i := snap.IndexOf(r.current)
		if i < 0 || snap.Items[i].RevealDone() {
			r.stop()
		}
	}

	next := -1
	for i := len(snap.Items) - 1; i >= 0; i-- {
		if it := snap.Items[i]; it.Typed && it.IsRevealing {
			next = i
			break
		}
	}
	if next < 0 || snap.Items[next].ID == r.current {
		return
	}

	// A newer item takes over: everything else snaps to full text first.
	for i := 0; i < next; i++ {
		if it := snap.Items[i]; it.Typed && it.IsRevealing {
			r.finish(it.ID)
		}
	}
	r.start(snap.Items[next])
}

// Stop cancels every pending tick. Items keep whatever was revealed.
func (r *Renderer) Stop() {
	r.stop()
}

// FinishAll snaps the active item to its full text and stops ticking.
func (r *Renderer) FinishAll() {
	if r.current != "" {
		id := r.current
		r.stop()
		r.finish(id)
	}
}

func (r *Renderer) start(it model.Item) {
	r.stop()
	r.current = it.ID
	r.text = it.Text
	r.pos = len(it.RevealedText)
	r.logger.Debug("reveal started", "item", it.ID, "len", len(it.Text))
	r.schedule()
}

func (r *Renderer) stop() {
	r.scope.Advance()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.current = ""
	r.text = ""
	r.pos = 0
}

func (r *Renderer) finish(id string) {
	if err := r.w.FinishReveal(id); err != nil {
		r.logger.Debug("finish reveal failed", "item", id, "error", err)
	}
}

func (r *Renderer) schedule() {
	r.timer = r.sched.After(r.interval, r.scope.Token(), r.tick)
}

// tick reveals exactly one more character.
func (r *Renderer) tick() {
	if r.current == "" {
		return
	}
	r.timer = nil

	cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(r.text[r.pos:], -1)
	if cluster == "" {
		r.stop()
		return
	}
	r.pos += len(cluster)
	r.ticks++

	id, revealed := r.current, r.text[:r.pos]
	done := r.pos >= len(r.text)
	if done {
		r.stop()
	} else {
		r.schedule()
	}

	r.sampler.Do(func() {
		r.logger.Debug("reveal tick", "item", id, "revealed", len(revealed), "ticks", r.ticks)
	})
	if err := r.w.AdvanceReveal(id, revealed); err != nil {
		r.logger.Debug("advance reveal failed", "item", id, "error", err)
		if r.current == id {
			r.stop()
		}
	}
}
