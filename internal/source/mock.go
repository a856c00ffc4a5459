// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package source

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jeranaias/anchorchat/internal/sched"
)

// =============================================================================
// MOCK SOURCE
// =============================================================================

// MockConfig controls the timing of the simulated responder.
type MockConfig struct {
	// Response is streamed paragraph by paragraph. Empty means DefaultResponse.
	Response string
	// Thinking is the delay before the first fragment.
	Thinking time.Duration
	// MinDelay and MaxDelay bound the random pause after each fragment.
	MinDelay time.Duration
	MaxDelay time.Duration
	// FailAfter makes the stream fail once this many fragments were sent.
	// Zero disables failure injection.
	FailAfter int
	// Seed makes delays reproducible when non-zero.
	Seed uint64
}

// DefaultMockConfig mirrors the pacing of a slow remote model.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Response: DefaultResponse,
		Thinking: 1500 * time.Millisecond,
		MinDelay: 500 * time.Millisecond,
		MaxDelay: 1500 * time.Millisecond,
	}
}

// Mock is a timer driven stand-in for a streaming API.
type Mock struct {
	sched  sched.Scheduler
	cfg    MockConfig
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock creates a mock source that schedules through s.
func NewMock(s sched.Scheduler, cfg MockConfig, logger *slog.Logger) *Mock {
	if cfg.Response == "" {
		cfg.Response = DefaultResponse
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Mock{
		sched:  s,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Config returns the active configuration.
func (m *Mock) Config() MockConfig {
	return m.cfg
}

// StartStream begins streaming the configured response.
func (m *Mock) StartStream(turn Turn, onFragment func(string), onComplete func(), onError func(error)) func() {
	frags := Fragments(m.cfg.Response)
	stream := &timedStream{
		sched:      m.sched,
		scope:      sched.NewScope(),
		frags:      frags,
		fails:      m.cfg.FailAfter > 0,
		failAt:     m.cfg.FailAfter,
		delay:      m.delay,
		onFragment: onFragment,
		onComplete: onComplete,
		onError:    onError,
	}

	m.logger.Debug("mock stream started",
		"prompt_len", len(turn.Prompt),
		"fragments", len(frags),
		"fail_after", m.cfg.FailAfter)

	stream.schedule(m.cfg.Thinking, 0)
	return stream.cancel
}

// delay picks the pause after a fragment.
func (m *Mock) delay() time.Duration {
	span := m.cfg.MaxDelay - m.cfg.MinDelay
	if span <= 0 {
		return m.cfg.MinDelay
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.MinDelay + time.Duration(m.rng.Int64N(int64(span)))
}

// =============================================================================
// SCRIPT SOURCE
// =============================================================================

// Script streams fixed fragments at a fixed cadence. A non-nil Err ends the
// stream with a failure after all fragments were sent.
type Script struct {
	Sched     sched.Scheduler
	Fragments []string
	Delay     time.Duration
	Err       error
}

// StartStream begins streaming the scripted fragments.
func (s *Script) StartStream(_ Turn, onFragment func(string), onComplete func(), onError func(error)) func() {
	stream := &timedStream{
		sched:      s.Sched,
		scope:      sched.NewScope(),
		frags:      s.Fragments,
		fails:      s.Err != nil,
		failAt:     len(s.Fragments),
		failErr:    s.Err,
		delay:      func() time.Duration { return s.Delay },
		onFragment: onFragment,
		onComplete: onComplete,
		onError:    onError,
	}
	stream.schedule(s.Delay, 0)
	return stream.cancel
}

// =============================================================================
// TIMED STREAM
// =============================================================================

// timedStream walks a fragment list one scheduled step at a time.
type timedStream struct {
	sched   sched.Scheduler
	scope   *sched.Scope
	frags   []string
	fails   bool
	failAt  int
	failErr error
	delay   func() time.Duration

	onFragment func(string)
	onComplete func()
	onError    func(error)

	mu    sync.Mutex
	timer sched.Timer
}

func (s *timedStream) schedule(d time.Duration, next int) {
	t := s.sched.After(d, s.scope.Token(), func() { s.step(next) })
	s.mu.Lock()
	s.timer = t
	s.mu.Unlock()
}

func (s *timedStream) step(i int) {
	if s.fails && i == s.failAt {
		err := s.failErr
		if err == nil {
			err = ErrInjectedFailure
		}
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	if i >= len(s.frags) {
		if s.onComplete != nil {
			s.onComplete()
		}
		return
	}
	if s.onFragment != nil {
		s.onFragment(s.frags[i])
	}
	s.schedule(s.delay(), i+1)
}

// cancel stops the pending timer and invalidates anything already posted.
func (s *timedStream) cancel() {
	s.scope.Advance()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
