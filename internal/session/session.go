// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jeranaias/anchorchat/internal/anchor"
	"github.com/jeranaias/anchorchat/internal/conversation"
	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
	"github.com/jeranaias/anchorchat/internal/source"
	"github.com/jeranaias/anchorchat/internal/typewriter"
	"github.com/jeranaias/anchorchat/internal/util"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options wires a session together.
type Options struct {
	// Sched is the loop every store mutation runs on. Required.
	Sched sched.Scheduler
	// Source produces replies. Required.
	Source source.Source
	// Viewport receives anchor scrolls. Nil disables anchoring scrolls.
	Viewport anchor.Viewport

	// Reveal enables the typewriter for assistant chunks.
	Reveal bool
	// TypeInterval is the typewriter cadence; zero selects the default.
	TypeInterval time.Duration
	// AnchorFallback is the anchor timer; zero selects the default.
	AnchorFallback time.Duration

	Logger *slog.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session owns one conversation: the store, the response source, the
// typewriter and the anchor controller, all driven by one loop.
//
// Every method must be called on the loop (see package sched).
type Session struct {
	id        string
	startTime time.Time

	sched  sched.Scheduler
	src    source.Source
	store  *conversation.Store
	typer  *typewriter.Renderer
	anchor *anchor.Controller
	logger *slog.Logger

	cancel   func()
	turns    int
	failures int
	rejected int
}

// New creates a session. The typewriter and the anchor controller observe
// the store in that order, so the anchor always sees revealed text.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	vp := opts.Viewport
	if vp == nil {
		vp = nopViewport{}
	}

	store := conversation.New(conversation.Options{Reveal: opts.Reveal, Logger: logger})
	s := &Session{
		id:        generateSessionID(opts.Sched.Now()),
		startTime: opts.Sched.Now(),
		sched:     opts.Sched,
		src:       opts.Source,
		store:     store,
		typer:     typewriter.New(store, opts.Sched, opts.TypeInterval, logger),
		anchor:    anchor.New(vp, opts.Sched, opts.AnchorFallback, logger),
		logger:    logger.With("component", "session"),
	}
	store.Subscribe(s.typer.Observe)
	store.Subscribe(s.anchor.OnItemsChanged)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Store returns the conversation store.
func (s *Session) Store() *conversation.Store { return s.store }

// Anchor returns the scroll anchor controller.
func (s *Session) Anchor() *anchor.Controller { return s.anchor }

// Typewriter returns the reveal renderer.
func (s *Session) Typewriter() *typewriter.Renderer { return s.typer }

// Snapshot returns the current read model.
func (s *Session) Snapshot() model.Snapshot { return s.store.Snapshot() }

// Subscribe registers an observer that runs after the typewriter and the
// anchor controller.
func (s *Session) Subscribe(fn conversation.Observer) (unsubscribe func()) {
	return s.store.Subscribe(fn)
}

// Submit appends the user's text and starts streaming a reply. Blank input
// returns conversation.ErrEmptyInput and a submission while generating
// returns conversation.ErrGenerating; both leave the session untouched.
func (s *Session) Submit(text string) error {
	sub, err := s.store.Submit(text)
	if err != nil {
		if errors.Is(err, conversation.ErrGenerating) {
			s.rejected++
		}
		return err
	}
	s.turns++
	s.stopStream()

	tok := sub.Token
	turn := source.Turn{Prompt: sub.Prompt, History: sub.History}
	s.logger.Info("turn started", "turn", s.turns, "item", sub.UserID, "epoch", tok.Epoch(),
		"prompt", promptPreview(sub.Prompt))

	s.cancel = s.src.StartStream(turn,
		func(fragment string) {
			s.sched.Post(tok, func() { s.apply("fragment", s.store.OnFragment(tok, fragment)) })
		},
		func() {
			s.sched.Post(tok, func() {
				s.apply("complete", s.store.OnComplete(tok))
				s.cancel = nil
			})
		},
		func(cause error) {
			s.sched.Post(tok, func() {
				if err := s.store.OnFailure(tok, cause); err == nil {
					s.failures++
				} else {
					s.apply("failure", err)
				}
				s.cancel = nil
			})
		},
	)
	return nil
}

// Reset clears the conversation and cancels the stream, the reveal and the
// pending anchor.
func (s *Session) Reset() {
	s.stopStream()
	s.typer.Stop()
	s.store.Reset()
	s.logger.Info("conversation reset")
}

// OnLayout forwards the view's content-size signal to the anchor controller.
func (s *Session) OnLayout(l anchor.Layout) {
	s.anchor.OnLayout(l)
}

// SetTypeInterval changes the typewriter cadence.
func (s *Session) SetTypeInterval(d time.Duration) {
	s.typer.SetInterval(d)
}

// SetReveal toggles the typewriter for chunks that arrive from now on.
// Turning it off snaps any active reveal to its full text.
func (s *Session) SetReveal(on bool) {
	if !on {
		s.typer.FinishAll()
	}
	s.store.SetReveal(on)
}

// Close cancels everything in flight. The session must not be used after.
func (s *Session) Close() {
	s.stopStream()
	s.typer.Stop()
}

func (s *Session) stopStream() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// apply logs store rejections of stream events. They are expected after a
// reset and never reach the user.
func (s *Session) apply(event string, err error) {
	if err == nil {
		return
	}
	s.logger.Debug("stream event discarded", "event", event, "error", err)
}

// nopViewport is used by headless sessions.
type nopViewport struct{}

func (nopViewport) ScrollToTop(int) error     { return nil }
func (nopViewport) ScrollToApproxOffset(int) {}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status summarizes the session for status bars and transcripts.
type Status struct {
	SessionID  string
	StartTime  time.Time
	Duration   time.Duration
	Turns      int
	Failures   int
	Rejected   int
	Items      int
	Generating bool
	Revealing  string
	Anchor     anchor.Phase
	Scrolls    anchor.Stats
}

// GetStatus returns the current session status.
func (s *Session) GetStatus() Status {
	snap := s.store.Snapshot()
	return Status{
		SessionID:  s.id,
		StartTime:  s.startTime,
		Duration:   s.sched.Now().Sub(s.startTime),
		Turns:      s.turns,
		Failures:   s.failures,
		Rejected:   s.rejected,
		Items:      snap.Len(),
		Generating: snap.IsGenerating,
		Revealing:  s.typer.Active(),
		Anchor:     s.anchor.Phase(),
		Scrolls:    s.anchor.Stats(),
	}
}

// generateSessionID creates a session ID from the start time.
// previewRunes bounds prompts quoted in log lines.
const previewRunes = 60

// promptPreview flattens a prompt onto one line for logging.
func promptPreview(prompt string) string {
	return util.TruncateRunes(util.SingleLine(prompt), previewRunes)
}

func generateSessionID(t time.Time) string {
	return "sess_" + t.Format("20060102_150405")
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
