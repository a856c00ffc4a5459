// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/conversation"
	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
	"github.com/jeranaias/anchorchat/internal/session"
	"github.com/jeranaias/anchorchat/internal/source"
	"github.com/jeranaias/anchorchat/internal/ui/styles"
	"github.com/jeranaias/anchorchat/internal/util"
)

const (
	placeholderReady      = "Type a message..."
	placeholderGenerating = "Waiting for the reply..."
)

// Layout heights outside the conversation pane. They must match view.go.
const (
	headerHeight    = 1
	inputAreaHeight = 3 // rounded border + one input line
	statusBarHeight = 1
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a chat model.
type Options struct {
	// Config defaults to config.Global().
	Config *config.Config
	Theme  *styles.Theme
	Logger *slog.Logger

	// Sched runs the session. Nil creates a sched.Program; attach it to the
	// running program with Program().SetSender.
	Sched sched.Scheduler
	// Source builds the responder on the model's scheduler. Nil selects the
	// simulated responder configured by Config.
	Source func(sched.Scheduler) source.Source
	// Clipboard receives copied replies. Nil uses the system clipboard.
	Clipboard func(string) error
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	cfg    *config.Config
	theme  *styles.Theme
	keys   KeyMap
	logger *slog.Logger

	sess *session.Session
	prog *sched.Program // nil when Options.Sched was given
	copy func(string) error

	// UI Components
	pane     *pane
	input    textinput.Model
	spinner  spinner.Model
	spinning bool

	// Dimensions
	width  int
	height int

	// Transient status bar message
	notice    string
	noticeSeq int
}

// New creates a chat model and its session.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Global()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(cfg.UI.Theme)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	copyFn := opts.Clipboard
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}

	var prog *sched.Program
	s := opts.Sched
	if s == nil {
		prog = sched.NewProgram(nil)
		s = prog
	}

	var src source.Source
	if opts.Source != nil {
		src = opts.Source(s)
	} else {
		src = source.NewMock(s, session.MockConfig(cfg), logger)
	}

	keys := DefaultKeyMap()
	p := newPane(newItemRenderer(theme, cfg.UI.Markdown), cfg.Anchor.FooterRatio, keys)

	so := session.OptionsFromConfig(cfg)
	so.Sched = s
	so.Source = src
	so.Viewport = p
	so.Logger = logger
	sess := session.New(so)
	sess.Subscribe(p.observe)
	p.observe(sess.Snapshot())

	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = theme.InputPrompt
	ti.Placeholder = placeholderReady
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New(
		spinner.WithSpinner(styles.LineSpinner.Bubble()),
		spinner.WithStyle(theme.Spinner),
	)

	return Model{
		cfg:     cfg,
		theme:   theme,
		keys:    keys,
		logger:  logger.With("component", "chat"),
		sess:    sess,
		prog:    prog,
		copy:    copyFn,
		pane:    p,
		input:   ti,
		spinner: sp,
	}
}

// Program returns the Bubble Tea scheduler, or nil when the model runs on a
// scheduler supplied through Options.
func (m Model) Program() *sched.Program { return m.prog }

// Session returns the conversation session behind the view.
func (m Model) Session() *session.Session { return m.sess }

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg)

	case tea.KeyMsg:
		var quit bool
		m, cmd, quit = m.handleKey(msg)
		if quit {
			return m, cmd
		}

	case tea.MouseMsg:
		before := m.pane.vp.YOffset
		m.pane.vp, cmd = m.pane.vp.Update(msg)
		m.pane.scrolled(before)

	case sched.WakeMsg:
		if m.prog != nil {
			m.prog.Drain()
		}

	case spinner.TickMsg:
		if !m.spinning {
			return m, nil
		}
		if !m.pane.snap.IsGenerating {
			m.spinning = false
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		if m.pane.snap.CountRole(model.RoleStatus) > 0 {
			m.pane.dirty = true
		}

	case ConfigReloadMsg:
		m, cmd = m.applyConfig(msg)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}

	default:
		m.input, cmd = m.input.Update(msg)
	}

	m, syncCmd := m.sync()
	return m, tea.Batch(cmd, syncCmd)
}

// sync lays out a changed snapshot, hands the layout to the anchor
// controller and matches the input and spinner to the generation state.
func (m Model) sync() (Model, tea.Cmd) {
	if !m.pane.dirty {
		return m, nil
	}
	m.pane.layout(m.spinner.View())
	m.sess.OnLayout(m.pane.layoutSignal())

	var cmds []tea.Cmd
	generating := m.pane.snap.IsGenerating
	switch {
	case generating && m.input.Focused():
		m.input.Blur()
		m.input.Placeholder = placeholderGenerating
	case !generating && !m.input.Focused():
		m.input.Placeholder = placeholderReady
		cmds = append(cmds, m.input.Focus())
	}
	if generating && !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m *Model) handleResize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	vh := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if vh < 1 {
		vh = 1
	}
	m.pane.setSize(max(1, m.width), vh)

	// Container border and padding take 4 cells, the prompt 2 more.
	m.input.Width = max(10, m.width-4-util.StringWidth(m.input.Prompt))
}

func (m Model) handleKey(msg tea.KeyMsg) (_ Model, cmd tea.Cmd, quit bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.sess.Close()
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.Submit):
		return m.submit(), nil, false

	case key.Matches(msg, m.keys.Reset):
		m.sess.Reset()
		m.pane.userScrolled = false
		m, cmd = m.setNotice("Conversation cleared")
		return m, cmd, false

	case key.Matches(msg, m.keys.Copy):
		m, cmd = m.copyLastReply()
		return m, cmd, false

	case key.Matches(msg, m.keys.ToggleReveal):
		on := !m.sess.Store().RevealEnabled()
		m.sess.SetReveal(on)
		label := "Typewriter off"
		if on {
			label = "Typewriter on"
		}
		m, cmd = m.setNotice(label)
		return m, cmd, false

	case key.Matches(msg, m.keys.Home):
		before := m.pane.vp.YOffset
		m.pane.vp.GotoTop()
		m.pane.scrolled(before)
		return m, nil, false

	case key.Matches(msg, m.keys.End):
		before := m.pane.vp.YOffset
		m.pane.vp.GotoBottom()
		m.pane.scrolled(before)
		return m, nil, false

	case m.keys.isScroll(msg):
		before := m.pane.vp.YOffset
		m.pane.vp, cmd = m.pane.vp.Update(msg)
		m.pane.scrolled(before)
		return m, cmd, false
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

// submit sends the input line. The input is disabled while a reply is
// generating, so Enter does nothing then.
func (m Model) submit() Model {
	if m.pane.snap.IsGenerating {
		return m
	}
	text := m.input.Value()
	err := m.sess.Submit(text)
	switch {
	case err == nil:
		m.input.Reset()
	case errors.Is(err, conversation.ErrEmptyInput):
		m.input.Reset()
	default:
		m.logger.Debug("submit rejected", "error", err)
	}
	return m
}

// copyLastReply copies the reply to the latest question to the clipboard.
func (m Model) copyLastReply() (Model, tea.Cmd) {
	reply := m.pane.snap.LastReply()
	if reply == "" {
		return m.setNotice("No reply to copy")
	}
	if err := m.copy(reply); err != nil {
		m.logger.Warn("clipboard write failed", "error", err)
		return m.setNotice("Failed to copy")
	}

	n := len([]rune(reply))
	sizeInfo := fmt.Sprintf("%d chars", n)
	if n >= 1000 {
		sizeInfo = fmt.Sprintf("%.1fK chars", float64(n)/1000)
	}
	return m.setNotice("Copied reply (" + sizeInfo + ")")
}

// applyConfig applies a hot-reloaded configuration. Theme changes need a
// restart; everything else takes effect immediately.
func (m Model) applyConfig(msg ConfigReloadMsg) (Model, tea.Cmd) {
	if msg.Err != nil {
		m.logger.Warn("config reload failed", "error", msg.Err)
		return m.setNotice("Config error: " + msg.Err.Error())
	}
	cfg := msg.Config
	m.sess.SetReveal(cfg.Typewriter.Enabled)
	m.sess.SetTypeInterval(cfg.TypeInterval())
	m.sess.Anchor().SetFallback(cfg.AnchorFallback())
	m.pane.renderer.setMarkdown(cfg.UI.Markdown)
	m.pane.footerRatio = cfg.Anchor.FooterRatio
	m.pane.dirty = true
	m.cfg = cfg
	config.SetGlobal(cfg)
	m.logger.Info("config reloaded", "typewriter_ms", cfg.Typewriter.IntervalMs, "markdown", cfg.UI.Markdown)
	return m.setNotice("Config reloaded")
}

func (m Model) setNotice(text string) (Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	return m, expireNotice(m.noticeSeq)
}
