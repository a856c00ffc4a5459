// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/anchorchat/internal/anchor"
	"github.com/jeranaias/anchorchat/internal/model"
)

// itemGap is the number of blank lines between two items.
const itemGap = 1

// =============================================================================
// CONVERSATION PANE
// =============================================================================

// pane is the scrollable conversation area. It lays out the latest snapshot,
// remembers the first line of every item and implements anchor.Viewport on
// top of that measurement.
//
// The Bubble Tea model is copied on every Update, so the pane lives behind a
// pointer shared by all copies and by the anchor controller.
type pane struct {
	vp       viewport.Model
	renderer *itemRenderer

	footerRatio float64

	snap  model.Snapshot
	dirty bool

	// Layout results, valid when measured is true.
	measured  bool
	offsets   []int
	heights   []int
	itemLines int
	footer    int

	// userScrolled is set when the user moved the viewport after the last
	// anchor scroll.
	userScrolled bool
	scrolls      int
}

func newPane(renderer *itemRenderer, footerRatio float64, keys KeyMap) *pane {
	vp := viewport.New(0, 0)
	vp.KeyMap = keys.viewportKeys()
	return &pane{
		vp:          vp,
		renderer:    renderer,
		footerRatio: footerRatio,
		dirty:       true,
	}
}

// observe is subscribed to the session and records each new snapshot.
func (p *pane) observe(snap model.Snapshot) {
	p.snap = snap
	p.dirty = true
}

// setSize resizes the viewport and forces a new layout.
func (p *pane) setSize(width, height int) {
	if width == p.vp.Width && height == p.vp.Height {
		return
	}
	p.vp.Width = width
	p.vp.Height = height
	p.dirty = true
}

// layout renders every item, records offsets and sets the viewport content.
// frame is the spinner frame drawn next to the status item.
func (p *pane) layout(frame string) {
	p.dirty = false
	width := p.vp.Width
	if width <= 0 || p.vp.Height <= 0 {
		p.measured = false
		p.offsets, p.heights = nil, nil
		return
	}

	items := p.snap.Items
	blocks := make([]string, len(items))
	offsets := make([]int, len(items))
	heights := make([]int, len(items))
	keep := make(map[string]struct{}, len(items))

	line := 0
	for i, it := range items {
		keep[it.ID] = struct{}{}
		blocks[i] = p.renderer.render(it, width, frame)
		offsets[i] = line
		heights[i] = lipgloss.Height(blocks[i])
		line += heights[i] + itemGap
	}
	if len(items) > 0 {
		line -= itemGap
	}
	p.renderer.forget(keep)

	p.offsets, p.heights = offsets, heights
	p.itemLines = line
	p.measured = true
	p.footer = p.footerFor(p.snap.LastUserIndex())

	var b strings.Builder
	b.WriteString(strings.Join(blocks, strings.Repeat("\n", itemGap+1)))
	b.WriteString(strings.Repeat("\n", p.footer))

	// SetContent clamps YOffset when the content got shorter.
	p.vp.SetContent(b.String())
}

// footerFor returns the blank lines reserved below the last item so the item
// at index can reach the top edge, capped at footerRatio of the height.
func (p *pane) footerFor(index int) int {
	if index < 0 || index >= len(p.offsets) {
		return 0
	}
	h := anchor.FooterHeight(p.vp.Height, p.itemLines-p.offsets[index])
	if limit := int(p.footerRatio * float64(p.vp.Height)); h > limit {
		h = limit
	}
	return h
}

// averageHeight returns the mean item height including the gap.
func (p *pane) averageHeight() float64 {
	if len(p.heights) == 0 {
		return 0
	}
	return float64(p.itemLines+itemGap) / float64(len(p.heights))
}

// maxOffset is the largest YOffset the viewport accepts.
func (p *pane) maxOffset() int {
	return max(0, p.itemLines+p.footer-p.vp.Height)
}

// topIndex returns the item shown on the first viewport line, or -1 when the
// user scrolled away or the first line is blank space.
func (p *pane) topIndex() int {
	if p.userScrolled || !p.measured {
		return -1
	}
	y := p.vp.YOffset

	// The anchored item may sit below the largest reachable offset when the
	// footer was capped. Pinned at that offset counts as anchored.
	if a := p.snap.LastUserIndex(); a >= 0 && a < len(p.offsets) {
		if p.offsets[a] > p.maxOffset() && y == p.maxOffset() {
			return a
		}
	}
	for i, off := range p.offsets {
		if y >= off && y < off+p.heights[i]+itemGap {
			return i
		}
	}
	return -1
}

// layoutSignal builds the content-size signal for the anchor controller.
func (p *pane) layoutSignal() anchor.Layout {
	return anchor.Layout{
		AverageItemHeight: p.averageHeight(),
		Generating:        p.snap.IsGenerating,
		TopIndex:          p.topIndex(),
	}
}

// ScrollToTop puts the first line of the item at index on the top edge.
func (p *pane) ScrollToTop(index int) error {
	if !p.measured || index < 0 || index >= len(p.offsets) {
		return fmt.Errorf("item %d: %w", index, anchor.ErrNotMeasured)
	}
	p.vp.SetYOffset(p.offsets[index])
	p.userScrolled = false
	p.scrolls++
	return nil
}

// ScrollToApproxOffset scrolls to an estimated line offset.
func (p *pane) ScrollToApproxOffset(offset int) {
	p.vp.SetYOffset(offset)
	p.userScrolled = false
	p.scrolls++
}

// scrolled records a manual scroll when the offset moved.
func (p *pane) scrolled(before int) {
	if p.vp.YOffset != before {
		p.userScrolled = true
	}
}

// scrollPercent returns how far down the content the viewport is.
func (p *pane) scrollPercent() int {
	return int(math.Round(p.vp.ScrollPercent() * 100))
}
