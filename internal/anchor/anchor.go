// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anchor keeps the most recent user submission pinned to the top of
// the viewport while the reply grows beneath it.
//
// The controller is a small state machine:
//
//	Idle -> PendingAnchor -> Anchored
//	              \-> Approximate (item not measured yet, exact retry once measured)
//
// It is driven by two signals: OnItemsChanged with every store snapshot and
// OnLayout after the view has measured its content.
package anchor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
)

// DefaultFallback is how long a pending anchor waits for a layout signal
// before it is issued anyway.
const DefaultFallback = 50 * time.Millisecond

// ErrNotMeasured is returned by a Viewport that cannot place an item yet.
var ErrNotMeasured = errors.New("item not measured")

// Viewport is the presentation surface the controller scrolls.
type Viewport interface {
	// ScrollToTop aligns the top edge of item index with the top of the
	// viewport, without animation.
	ScrollToTop(index int) error
	// ScrollToApproxOffset scrolls to an estimated line offset.
	ScrollToApproxOffset(offset int)
}

// Layout is the content-size signal sent by the view after rendering.
type Layout struct {
	// AverageItemHeight is used to estimate offsets of unmeasured items.
	AverageItemHeight float64
	// Generating mirrors the snapshot flag the layout was rendered from.
	Generating bool
	// TopIndex is the item currently at the top edge, -1 when unknown.
	TopIndex int
}

// Phase is the controller state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseAnchored
	PhaseApproximate
)

// String returns a short name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseAnchored:
		return "anchored"
	case PhaseApproximate:
		return "approximate"
	default:
		return "unknown"
	}
}

// Stats counts scroll decisions.
type Stats struct {
	Anchors   uint64 // scrolls issued for a new submission
	Fallbacks uint64 // approximate scrolls after ErrNotMeasured
	Retries   uint64 // successful exact retries after a fallback
	Reaffirms uint64 // exact scrolls after a layout shift
	Timeouts  uint64 // anchors issued by the fallback timer
}

// String formats the stats for a status line.
func (s Stats) String() string {
	return fmt.Sprintf("anchors %d  approx %d  retry %d  reaffirm %d", s.Anchors, s.Fallbacks, s.Retries, s.Reaffirms)
}

// FooterHeight returns the blank space to reserve below the last item so
// the anchored item can reach the top edge while the reply is short.
func FooterHeight(viewportHeight, linesFromAnchorToEnd int) int {
	return max(0, viewportHeight-linesFromAnchorToEnd)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller decides when and where to scroll. It is owned by the
// conversation loop and is not safe for concurrent use.
type Controller struct {
	vp       Viewport
	sched    sched.Scheduler
	scope    *sched.Scope
	fallback time.Duration
	logger   *slog.Logger

	phase          Phase
	pendingIndex   int
	anchoredIndex  int
	lastAnchoredID string
	retry          bool
	avgHeight      float64
	timer          sched.Timer
	stats          Stats
}

// New creates a controller that scrolls vp. A non-positive fallback selects
// DefaultFallback.
func New(vp Viewport, s sched.Scheduler, fallback time.Duration, logger *slog.Logger) *Controller {
	if fallback <= 0 {
		fallback = DefaultFallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		vp:            vp,
		sched:         s,
		scope:         sched.NewScope(),
		fallback:      fallback,
		logger:        logger.With("component", "anchor"),
		pendingIndex:  -1,
		anchoredIndex: -1,
	}
}

// Phase returns the current state.
func (c *Controller) Phase() Phase { return c.phase }

// Pending returns the index waiting to be anchored, or -1.
func (c *Controller) Pending() int { return c.pendingIndex }

// Anchored returns the ID and index of the last anchored user item.
func (c *Controller) Anchored() (id string, index int) {
	return c.lastAnchoredID, c.anchoredIndex
}

// Stats returns the scroll counters.
func (c *Controller) Stats() Stats { return c.stats }

// SetFallback changes the fallback delay for anchors armed from now on.
func (c *Controller) SetFallback(d time.Duration) {
	if d > 0 {
		c.fallback = d
	}
}

// OnItemsChanged inspects a new snapshot. Subscribe it to the store.
func (c *Controller) OnItemsChanged(snap model.Snapshot) {
	if snap.IsEmpty() {
		if c.lastAnchoredID != "" || c.phase != PhaseIdle {
			c.Reset()
		}
		return
	}

	idx := snap.LastUserIndex()
	if idx < 0 {
		return
	}
	id := snap.Items[idx].ID
	if id == c.lastAnchoredID {
		return
	}

	c.lastAnchoredID = id
	c.pendingIndex = idx
	c.phase = PhasePending
	c.retry = false
	c.armFallback()
	c.logger.Debug("anchor pending", "item", id, "index", idx)
}

// OnLayout reacts to the view's content-size signal.
func (c *Controller) OnLayout(l Layout) {
	if l.AverageItemHeight > 0 {
		c.avgHeight = l.AverageItemHeight
	}

	switch c.phase {
	case PhasePending:
		c.issue()

	case PhaseApproximate:
		if !c.retry {
			return
		}
		if err := c.vp.ScrollToTop(c.anchoredIndex); err != nil {
			// An unmeasured item keeps the retry for the next layout.
			if !errors.Is(err, ErrNotMeasured) {
				c.retry = false
			}
			c.logger.Debug("exact retry failed", "index", c.anchoredIndex, "error", err)
			return
		}
		c.retry = false
		c.phase = PhaseAnchored
		c.stats.Retries++

	case PhaseAnchored:
		if !l.Generating || l.TopIndex < 0 || l.TopIndex == c.anchoredIndex {
			return
		}
		if err := c.vp.ScrollToTop(c.anchoredIndex); err != nil {
			c.logger.Debug("reaffirm failed", "index", c.anchoredIndex, "error", err)
			return
		}
		c.stats.Reaffirms++
	}
}

// Reset clears the anchor and cancels the fallback timer.
func (c *Controller) Reset() {
	c.cancelFallback()
	c.phase = PhaseIdle
	c.pendingIndex = -1
	c.anchoredIndex = -1
	c.lastAnchoredID = ""
	c.retry = false
	c.logger.Debug("anchor reset")
}

// issue scrolls to the pending index exactly once.
func (c *Controller) issue() {
	if c.pendingIndex < 0 {
		return
	}
	c.cancelFallback()
	idx := c.pendingIndex
	c.pendingIndex = -1
	c.anchoredIndex = idx
	c.stats.Anchors++

	err := c.vp.ScrollToTop(idx)
	if err == nil {
		c.phase = PhaseAnchored
		return
	}

	// Unmeasured items, or any other scroll failure, degrade to an estimate.
	offset := int(math.Round(c.avgHeight * float64(idx)))
	c.vp.ScrollToApproxOffset(offset)
	c.phase = PhaseApproximate
	c.retry = true
	c.stats.Fallbacks++
	c.logger.Debug("anchor approximated", "index", idx, "offset", offset, "unmeasured", errors.Is(err, ErrNotMeasured), "error", err)
}

func (c *Controller) armFallback() {
	c.cancelFallback()
	if c.sched == nil {
		return
	}
	c.timer = c.sched.After(c.fallback, c.scope.Token(), func() {
		c.timer = nil
		if c.phase == PhasePending {
			c.stats.Timeouts++
			c.issue()
		}
	})
}

func (c *Controller) cancelFallback() {
	c.scope.Advance()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
