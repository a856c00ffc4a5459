// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/ui/styles"
	"github.com/jeranaias/anchorchat/internal/util"
)

// emptyHint is shown before the first question.
const emptyHint = "Ask something. Your question stays pinned at the top while the reply streams in."

// =============================================================================
// MAIN VIEW
// =============================================================================

// View renders the chat view: header, conversation, input and status bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderConversation(),
		m.renderInput(),
		m.renderStatusBar(),
	)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("anchorchat")
	sub := m.theme.HeaderSubtitle.Render(" " + m.sess.ID())
	line := title + sub

	return m.theme.Header.Width(m.width).MaxHeight(headerHeight).Render(line)
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m Model) renderConversation() string {
	if m.pane.snap.IsEmpty() {
		return lipgloss.Place(m.pane.vp.Width, m.pane.vp.Height,
			lipgloss.Center, lipgloss.Center,
			m.theme.StatusItem.Render(emptyHint))
	}
	return m.pane.vp.View()
}

// =============================================================================
// INPUT
// =============================================================================

func (m Model) renderInput() string {
	inner := max(1, m.width-2)
	if m.input.Focused() {
		return m.theme.InputContainer.Width(inner).Render(m.input.View())
	}
	return m.theme.InputContainer.Width(inner).Render(
		m.theme.InputDisabled.Render(m.input.Prompt + m.input.Placeholder))
}

// =============================================================================
// STATUS BAR
// =============================================================================

// renderStatusBar shows the generation state, a notice or the anchor stats,
// and the shortcuts. Only the state label is styled separately, so the rest
// can be truncated as plain text.
func (m Model) renderStatusBar() string {
	label, style := m.stateLabel()
	left := " " + label + " "

	var parts []string
	if m.notice != "" {
		parts = append(parts, m.notice)
	} else if m.cfg.UI.ShowStats {
		parts = append(parts, m.statsText())
	}
	parts = append(parts, m.keys.shortcutHint())
	rest := strings.Join(parts, "  |  ")

	avail := m.width - util.StringWidth(left)
	rest = util.PadRight(util.TruncateWidth(rest, avail), avail)
	return style.Render(left) + m.theme.StatusBar.Render(rest)
}

// stateLabel returns the indicator for the current generation state.
func (m Model) stateLabel() (string, lipgloss.Style) {
	snap := m.pane.snap
	switch {
	case snap.IsGenerating:
		return styles.StatusIndicators.Generating + " generating", m.theme.StateBusy
	case m.sess.Typewriter().Active() != "":
		return styles.StatusIndicators.Generating + " typing", m.theme.StateBusy
	case lastRole(snap) == model.RoleError:
		return styles.StatusIndicators.Error + " failed", m.theme.Notice
	default:
		return styles.StatusIndicators.Idle + " ready", m.theme.StateIdle
	}
}

func (m Model) statsText() string {
	st := m.sess.Anchor().Stats()
	return fmt.Sprintf("items %d  anchors %d  approx %d  %d%%",
		m.pane.snap.Len(), st.Anchors, st.Fallbacks, m.pane.scrollPercent())
}

func lastRole(snap model.Snapshot) model.Role {
	if it, ok := snap.Item(snap.Len() - 1); ok {
		return it.Role
	}
	return ""
}
