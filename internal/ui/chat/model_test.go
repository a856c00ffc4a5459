// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/anchorchat/internal/anchor"
	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/logging"
	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
	"github.com/jeranaias/anchorchat/internal/source"
	"github.com/jeranaias/anchorchat/internal/ui/styles"
)

var start = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// harness drives a Model the way the Bubble Tea runtime would, on a virtual
// clock.
type harness struct {
	t       *testing.T
	m       Model
	v       *sched.Virtual
	copied  string
	copyErr error
}

func newHarness(t *testing.T, frags []string, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Typewriter.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{t: t, v: sched.NewVirtual(start)}
	h.m = New(Options{
		Config: cfg,
		Theme:  styles.NewTheme("dark"),
		Logger: logging.Discard(),
		Sched:  h.v,
		Source: func(s sched.Scheduler) source.Source {
			return &source.Script{Sched: s, Fragments: frags, Delay: 100 * time.Millisecond}
		},
		Clipboard: func(text string) error {
			h.copied = text
			return h.copyErr
		},
	})
	return h
}

func (h *harness) send(msg tea.Msg) {
	h.t.Helper()
	next, _ := h.m.Update(msg)
	h.m = next.(Model)
}

func (h *harness) resize(w, ht int) { h.send(tea.WindowSizeMsg{Width: w, Height: ht}) }

func (h *harness) typeText(s string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) enter() { h.send(tea.KeyMsg{Type: tea.KeyEnter}) }

// advance moves the virtual clock and wakes the model like sched.Program would.
func (h *harness) advance(d time.Duration) {
	h.v.Advance(d)
	h.send(sched.WakeMsg{})
}

func (h *harness) snap() model.Snapshot { return h.m.Session().Snapshot() }

func roles(snap model.Snapshot) []model.Role {
	out := make([]model.Role, 0, snap.Len())
	for _, it := range snap.Items {
		out = append(out, it.Role)
	}
	return out
}

// =============================================================================
// SUBMIT AND STREAM
// =============================================================================

func TestModel_SubmitAnchorsQuestionAndDisablesInput(t *testing.T) {
	h := newHarness(t, []string{"Hi", "there"}, nil)
	h.resize(80, 24)

	h.typeText("hello")
	h.enter()

	snap := h.snap()
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleStatus}, roles(snap))
	assert.True(t, snap.IsGenerating)
	assert.Equal(t, "", h.m.input.Value(), "input is cleared after submit")
	assert.False(t, h.m.input.Focused(), "input is disabled while generating")
	assert.Equal(t, placeholderGenerating, h.m.input.Placeholder)

	a := h.m.Session().Anchor()
	assert.Equal(t, anchor.PhaseAnchored, a.Phase())
	assert.Equal(t, uint64(1), a.Stats().Anchors)
	assert.Equal(t, 0, h.m.pane.vp.YOffset)

	// Viewport is 24 - 5 = 19 lines; user + gap + status = 3 lines.
	// FooterHeight is 16, capped at int(0.8 * 19) = 15.
	assert.Equal(t, 15, h.m.pane.footer)

	assert.Contains(t, h.m.View(), "Thinking...")
}

func TestModel_StreamCompletesAndReenablesInput(t *testing.T) {
	h := newHarness(t, []string{"Hi", "there"}, nil)
	h.resize(80, 24)
	h.typeText("hello")
	h.enter()

	h.advance(100 * time.Millisecond)
	snap := h.snap()
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleChunk}, roles(snap))
	assert.Contains(t, h.m.View(), "Hi")
	assert.False(t, h.m.input.Focused())

	h.advance(200 * time.Millisecond)
	snap = h.snap()
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleChunk, model.RoleChunk}, roles(snap))
	assert.False(t, snap.IsGenerating)
	assert.True(t, h.m.input.Focused())
	assert.Equal(t, placeholderReady, h.m.input.Placeholder)

	// The question stays on the top line and is anchored exactly once.
	assert.Equal(t, 0, h.m.pane.vp.YOffset)
	assert.Equal(t, uint64(1), h.m.Session().Anchor().Stats().Anchors)
}

func TestModel_EnterWhileGeneratingIsIgnored(t *testing.T) {
	h := newHarness(t, []string{"Hi"}, nil)
	h.resize(80, 24)
	h.typeText("first")
	h.enter()

	h.typeText("second")
	h.enter()

	snap := h.snap()
	assert.Equal(t, 1, snap.CountRole(model.RoleUser))
	assert.Equal(t, 0, h.m.Session().GetStatus().Rejected)
	assert.Equal(t, "", h.m.input.Value(), "blurred input ignores typing")
}

func TestModel_EmptySubmitDoesNothing(t *testing.T) {
	h := newHarness(t, []string{"Hi"}, nil)
	h.resize(80, 24)
	h.typeText("   ")
	h.enter()

	assert.True(t, h.snap().IsEmpty())
	assert.True(t, h.m.input.Focused())
	assert.Contains(t, h.m.View(), "Ask something.")
}

func TestModel_SecondQuestionAnchorsAgain(t *testing.T) {
	h := newHarness(t, []string{"Hi"}, nil)
	h.resize(80, 24)

	h.typeText("one")
	h.enter()
	h.advance(200 * time.Millisecond)
	require.False(t, h.snap().IsGenerating)

	h.typeText("two")
	h.enter()

	// [user, chunk, user, status]: the second question starts on line 4.
	// The footer cap (15 of 19 lines) leaves the deepest reachable offset
	// at 7 + 15 - 19 = 3, so the viewport pins there and still counts as
	// anchored.
	_, idx := h.m.Session().Anchor().Anchored()
	assert.Equal(t, 2, idx)
	assert.Equal(t, 3, h.m.pane.vp.YOffset)
	assert.Equal(t, 2, h.m.pane.topIndex())
	assert.Equal(t, uint64(2), h.m.Session().Anchor().Stats().Anchors)
}

// =============================================================================
// ANCHOR FALLBACK
// =============================================================================

func TestModel_SubmitBeforeFirstLayoutApproximatesThenRetries(t *testing.T) {
	h := newHarness(t, []string{"Hi"}, nil)

	h.typeText("hello")
	h.enter()

	a := h.m.Session().Anchor()
	assert.Equal(t, anchor.PhaseApproximate, a.Phase())
	assert.Equal(t, uint64(1), a.Stats().Fallbacks)

	// The reply starts streaming while the window size is still unknown.
	h.advance(100 * time.Millisecond)
	assert.Equal(t, anchor.PhaseApproximate, a.Phase())
	assert.Zero(t, a.Stats().Retries)

	h.resize(80, 24)
	assert.Equal(t, anchor.PhaseAnchored, a.Phase())
	assert.Equal(t, uint64(1), a.Stats().Retries)
	assert.Equal(t, 0, h.m.pane.vp.YOffset)
}

// =============================================================================
// TYPEWRITER
// =============================================================================

func TestModel_TypewriterRevealsChunk(t *testing.T) {
	h := newHarness(t, []string{"abc"}, func(c *config.Config) {
		c.Typewriter.Enabled = true
		c.Typewriter.IntervalMs = 10
	})
	h.resize(80, 24)
	h.typeText("hello")
	h.enter()

	h.advance(100 * time.Millisecond)
	it, ok := h.snap().Item(1)
	require.True(t, ok)
	assert.True(t, it.IsRevealing)
	assert.Equal(t, "", it.RevealedText)

	h.advance(10 * time.Millisecond)
	it, _ = h.snap().Item(1)
	assert.Equal(t, "a", it.RevealedText)

	h.advance(50 * time.Millisecond)
	it, _ = h.snap().Item(1)
	assert.Equal(t, "abc", it.RevealedText)
	assert.False(t, it.IsRevealing)
	assert.Contains(t, h.m.View(), "abc")
}

func TestModel_ToggleRevealKey(t *testing.T) {
	h := newHarness(t, []string{"Hi"}, nil)
	h.resize(80, 24)
	require.False(t, h.m.Session().Store().RevealEnabled())

	h.send(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.True(t, h.m.Session().Store().RevealEnabled())
	assert.Equal(t, "Typewriter on", h.m.notice)
}

// =============================================================================
// RESET AND COPY
// =============================================================================

func TestModel_ResetClearsConversationAndAnchor(t *testing.T) {
	h := newHarness(t, []string{"Hi", "there"}, nil)
	h.resize(80, 24)
	h.typeText("hello")
	h.enter()
	h.advance(100 * time.Millisecond)

	h.send(tea.KeyMsg{Type: tea.KeyCtrlL})

	snap := h.snap()
	assert.True(t, snap.IsEmpty())
	assert.False(t, snap.IsGenerating)
	assert.Equal(t, anchor.PhaseIdle, h.m.Session().Anchor().Phase())
	assert.True(t, h.m.input.Focused())
	assert.Equal(t, "Conversation cleared", h.m.notice)

	// The rest of the old stream never lands.
	h.advance(time.Second)
	assert.True(t, h.snap().IsEmpty())
}

func TestModel_CopyLastReply(t *testing.T) {
	h := newHarness(t, []string{"Hi", "there"}, nil)
	h.resize(80, 24)

	h.send(tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Equal(t, "No reply to copy", h.m.notice)

	h.typeText("hello")
	h.enter()
	h.advance(300 * time.Millisecond)

	h.send(tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Equal(t, "Hi\n\nthere", h.copied)
	assert.Equal(t, "Copied reply (9 chars)", h.m.notice)

	h.copyErr = errors.New("no clipboard")
	h.send(tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Equal(t, "Failed to copy", h.m.notice)
}

func TestModel_NoticeExpires(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.resize(80, 24)
	h.send(tea.KeyMsg{Type: tea.KeyCtrlL})
	seq := h.m.noticeSeq

	h.send(noticeExpiredMsg{seq: seq - 1})
	assert.NotEmpty(t, h.m.notice, "stale expiry keeps the newer notice")

	h.send(noticeExpiredMsg{seq: seq})
	assert.Empty(t, h.m.notice)
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

func TestModel_ConfigReloadAppliesLiveSettings(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.resize(80, 24)

	cfg := config.Default()
	cfg.Typewriter.IntervalMs = 55
	cfg.UI.Markdown = true
	h.send(ConfigReloadMsg{Config: cfg})

	assert.Equal(t, 55*time.Millisecond, h.m.Session().Typewriter().Interval())
	assert.True(t, h.m.Session().Store().RevealEnabled())
	assert.True(t, h.m.pane.renderer.markdown)
	assert.Equal(t, "Config reloaded", h.m.notice)

	h.send(ConfigReloadMsg{Err: errors.New("bad toml")})
	assert.Equal(t, "Config error: bad toml", h.m.notice)
	assert.Equal(t, 55*time.Millisecond, h.m.Session().Typewriter().Interval(), "failed reload keeps settings")
}

// =============================================================================
// VIEW
// =============================================================================

func TestModel_ViewBeforeSize(t *testing.T) {
	h := newHarness(t, nil, nil)
	assert.Equal(t, "Loading...", h.m.View())
}

func TestModel_StatusBarFitsWidth(t *testing.T) {
	for _, w := range []int{30, 80, 200} {
		h := newHarness(t, []string{"Hi"}, nil)
		h.resize(w, 24)
		h.typeText("hello")
		h.enter()
		assert.Equal(t, w, lipgloss.Width(h.m.renderStatusBar()), "width %d", w)
	}
}

func TestModel_StateLabel(t *testing.T) {
	h := newHarness(t, []string{"Hi"}, nil)
	h.resize(80, 24)

	label, _ := h.m.stateLabel()
	assert.Contains(t, label, "ready")

	h.typeText("hello")
	h.enter()
	label, _ = h.m.stateLabel()
	assert.Contains(t, label, "generating")
}

func TestModel_QuitClosesSession(t *testing.T) {
	h := newHarness(t, []string{"Hi"}, nil)
	h.resize(80, 24)
	h.typeText("hello")
	h.enter()

	_, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	// The stream was cancelled, so no fragment arrives.
	h.v.Advance(time.Second)
	assert.Equal(t, 0, h.snap().CountRole(model.RoleChunk))
}
