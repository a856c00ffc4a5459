// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/ui/styles"
)

// =============================================================================
// ITEM RENDERING
// =============================================================================

// userBubbleRatio is the widest a user bubble may grow, as a share of the
// viewport width.
const userBubbleRatio = 0.75

// renderedItem caches the output of a finished item.
type renderedItem struct {
	display string
	width   int
	out     string
}

// itemRenderer turns items into styled blocks. It caches finished items by
// ID since glamour output is expensive to produce.
type itemRenderer struct {
	theme    *styles.Theme
	markdown bool

	md      *glamour.TermRenderer
	mdWidth int
	cache   map[string]renderedItem
}

func newItemRenderer(theme *styles.Theme, markdown bool) *itemRenderer {
	return &itemRenderer{
		theme:    theme,
		markdown: markdown,
		cache:    make(map[string]renderedItem),
	}
}

// setMarkdown toggles glamour rendering for finished chunks.
func (r *itemRenderer) setMarkdown(on bool) {
	if r.markdown == on {
		return
	}
	r.markdown = on
	r.reset()
}

// reset drops every cached block.
func (r *itemRenderer) reset() {
	r.cache = make(map[string]renderedItem)
}

// forget drops cached blocks whose IDs are not in keep.
func (r *itemRenderer) forget(keep map[string]struct{}) {
	for id := range r.cache {
		if _, ok := keep[id]; !ok {
			delete(r.cache, id)
		}
	}
}

// render returns the block for it at the given width. frame is the spinner
// frame shown next to the status item.
func (r *itemRenderer) render(it model.Item, width int, frame string) string {
	if width < 4 {
		width = 4
	}
	display := it.Display()
	cacheable := it.Role != model.RoleStatus && it.RevealDone()
	if cacheable {
		if c, ok := r.cache[it.ID]; ok && c.width == width && c.display == display {
			return c.out
		}
	}

	var out string
	switch it.Role {
	case model.RoleUser:
		out = r.renderUser(display, width)
	case model.RoleStatus:
		out = r.renderStatus(display, frame)
	case model.RoleError:
		out = r.renderBlock(r.theme.ErrorItem, "Error: "+display, width)
	default:
		out = r.renderChunk(it, display, width)
	}

	if cacheable {
		r.cache[it.ID] = renderedItem{display: display, width: width, out: out}
	}
	return out
}

func (r *itemRenderer) renderUser(text string, width int) string {
	st := r.theme.UserBubble
	maxW := int(float64(width) * userBubbleRatio)
	w := lipgloss.Width(text) + st.GetHorizontalPadding()
	if w > maxW {
		w = maxW
	}
	bubble := st.Width(w).Render(text)
	return lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble)
}

func (r *itemRenderer) renderStatus(text, frame string) string {
	if frame == "" {
		return r.theme.StatusItem.Render(text)
	}
	return r.theme.Spinner.Render(frame) + " " + r.theme.StatusItem.Render(text)
}

func (r *itemRenderer) renderChunk(it model.Item, text string, width int) string {
	if it.IsRevealing {
		return r.renderBlock(r.theme.AssistantChunk, text, width, r.theme.Cursor.Render(styles.RevealCursor))
	}
	if r.markdown {
		if md, ok := r.renderMarkdown(text, width-r.theme.FrameWidth(model.RoleChunk)); ok {
			st := r.theme.AssistantChunk.UnsetPaddingLeft()
			return st.Render(md)
		}
	}
	return r.renderBlock(r.theme.AssistantChunk, text, width)
}

// renderBlock wraps text so the block, border included, is width cells wide.
func (r *itemRenderer) renderBlock(st lipgloss.Style, text string, width int, suffix ...string) string {
	inner := width - st.GetHorizontalBorderSize()
	if inner < 1 {
		inner = 1
	}
	if len(suffix) > 0 {
		text += strings.Join(suffix, "")
	}
	return st.Width(inner).Render(text)
}

// renderMarkdown renders text with glamour. The renderer is rebuilt when the
// width changes.
func (r *itemRenderer) renderMarkdown(text string, width int) (string, bool) {
	if width < 10 {
		return "", false
	}
	if r.md == nil || r.mdWidth != width {
		style := "dark"
		if !r.theme.IsDark {
			style = "light"
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", false
		}
		r.md, r.mdWidth = md, width
	}
	out, err := r.md.Render(text)
	if err != nil {
		return "", false
	}
	return strings.Trim(out, "\n"), true
}
