// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the conversation store: the ordered item log and
// the generation flag, mutated only through the transitions defined here.
//
// The store is owned by one event loop. It has no locks; every method must be
// called from the loop goroutine (see package sched).
package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned for blank submissions. Callers ignore it.
	ErrEmptyInput = errors.New("empty input")
	// ErrGenerating rejects a submission while a reply is still streaming.
	ErrGenerating = errors.New("generation in progress")
	// ErrNotGenerating rejects stream events that arrive after completion.
	ErrNotGenerating = errors.New("no generation in progress")
	// ErrStaleEpoch marks an event from a stream that was reset or superseded.
	ErrStaleEpoch = errors.New("stale generation epoch")
	// ErrUnknownItem is returned when an item ID is not in the log.
	ErrUnknownItem = errors.New("unknown item")
	// ErrRevealOrder rejects a reveal that is not a growing prefix of the text.
	ErrRevealOrder = errors.New("revealed text must be a growing prefix")
)

// =============================================================================
// STORE
// =============================================================================

// Observer receives every snapshot, in mutation order.
type Observer func(model.Snapshot)

// Options configures a Store.
type Options struct {
	// Reveal marks new assistant chunks as typed so a typewriter reveals them.
	Reveal bool
	Logger *slog.Logger
}

// Submission describes an accepted user turn.
type Submission struct {
	UserID string
	Prompt string
	// Token is the epoch stamp every stream event for this turn must carry.
	Token sched.Token
	// History is the log as it was before the turn, for the response source.
	History []model.Item
}

type observerEntry struct {
	id int
	fn Observer
}

// Store is the single writer of the conversation log.
type Store struct {
	items      []model.Item
	generating bool
	scope      *sched.Scope
	version    uint64
	reveal     bool
	logger     *slog.Logger

	observers []observerEntry
	nextObsID int
	pending   []model.Snapshot
	notifying bool
}

// New creates an empty store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		scope:  sched.NewScope(),
		reveal: opts.Reveal,
		logger: logger.With("component", "store"),
	}
}

// =============================================================================
// READ MODEL
// =============================================================================

// Snapshot returns an immutable copy of the current state.
func (s *Store) Snapshot() model.Snapshot {
	return model.NewSnapshot(s.items, s.generating, s.scope.Epoch(), s.version)
}

// IsGenerating reports whether a reply is in flight.
func (s *Store) IsGenerating() bool {
	return s.generating
}

// Len returns the number of items in the log.
func (s *Store) Len() int {
	return len(s.items)
}

// Token returns the token of the current generation epoch.
func (s *Store) Token() sched.Token {
	return s.scope.Token()
}

// RevealEnabled reports whether new chunks are created typed.
func (s *Store) RevealEnabled() bool {
	return s.reveal
}

// SetReveal toggles typed chunks for fragments that arrive from now on.
func (s *Store) SetReveal(on bool) {
	s.reveal = on
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	return func() {
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// publish bumps the version and notifies observers. A mutation made by an
// observer is queued and delivered after the current round, so every
// observer sees every snapshot in order.
func (s *Store) publish() {
	s.version++
	s.pending = append(s.pending, s.Snapshot())
	if s.notifying {
		return
	}
	s.notifying = true
	defer func() { s.notifying = false }()

	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending = s.pending[1:]
		observers := append([]observerEntry(nil), s.observers...)
		for _, o := range observers {
			o.fn(snap)
		}
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Submit appends a user item followed by a status item and starts a new
// generation epoch. Blank input returns ErrEmptyInput and a submission while
// generating returns ErrGenerating; neither changes state.
func (s *Store) Submit(text string) (Submission, error) {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return Submission{}, ErrEmptyInput
	}
	if s.generating {
		s.logger.Debug("submission rejected while generating", "len", len(text))
		return Submission{}, ErrGenerating
	}

	history := append([]model.Item(nil), s.items...)
	tok := s.scope.Advance()

	user := model.NewUserItem(text)
	s.items = append(s.items, user, model.NewStatusItem())
	s.generating = true

	s.logger.Debug("submitted", "item", user.ID, "epoch", tok.Epoch())
	s.publish()

	return Submission{UserID: user.ID, Prompt: text, Token: tok, History: history}, nil
}

// OnFragment applies one streamed fragment. The status item, if present, is
// removed first; the fragment becomes a new assistant chunk.
func (s *Store) OnFragment(tok sched.Token, fragment string) error {
	if err := s.checkStream(tok); err != nil {
		return err
	}

	s.removeStatus()
	s.items = append(s.items, model.NewChunkItem(fragment, s.reveal))
	s.publish()
	return nil
}

// OnComplete ends the generation. Calling it again has no effect.
func (s *Store) OnComplete(tok sched.Token) error {
	if !tok.Valid() {
		return ErrStaleEpoch
	}
	if !s.generating {
		return nil
	}

	s.removeStatus()
	s.generating = false
	s.logger.Debug("generation complete", "epoch", tok.Epoch(), "items", len(s.items))
	s.publish()
	return nil
}

// OnFailure ends the generation with an error marker. Chunks that already
// arrived stay in the log.
func (s *Store) OnFailure(tok sched.Token, cause error) error {
	if err := s.checkStream(tok); err != nil {
		return err
	}

	msg := "The response failed."
	if cause != nil {
		msg = fmt.Sprintf("The response failed: %v", cause)
	}

	s.removeStatus()
	s.items = append(s.items, model.NewErrorItem(msg))
	s.generating = false
	s.logger.Warn("generation failed", "epoch", tok.Epoch(), "error", cause)
	s.publish()
	return nil
}

// Reset clears the log and invalidates every in-flight stream and timer
// stamped with the old epoch.
func (s *Store) Reset() {
	s.scope.Advance()
	s.items = nil
	s.generating = false
	s.logger.Debug("reset", "epoch", s.scope.Epoch())
	s.publish()
}

func (s *Store) checkStream(tok sched.Token) error {
	if !tok.Valid() {
		return ErrStaleEpoch
	}
	if !s.generating {
		return ErrNotGenerating
	}
	return nil
}

// removeStatus drops the status item. At most one exists.
func (s *Store) removeStatus() bool {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Role == model.RoleStatus {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// =============================================================================
// REVEAL WRITES
// =============================================================================

// AdvanceReveal sets the revealed prefix of a typed item. Once the prefix
// covers the whole text the item stops revealing for good.
func (s *Store) AdvanceReveal(id, revealed string) error {
	i, err := s.typedIndex(id)
	if err != nil {
		return err
	}
	it := &s.items[i]
	if !it.ValidReveal(revealed) {
		return fmt.Errorf("%w: item %s", ErrRevealOrder, id)
	}
	if revealed == it.RevealedText && it.IsRevealing == (revealed != it.Text) {
		return nil
	}

	it.RevealedText = revealed
	it.IsRevealing = revealed != it.Text
	s.publish()
	return nil
}

// FinishReveal snaps a typed item to its full text.
func (s *Store) FinishReveal(id string) error {
	i, err := s.typedIndex(id)
	if err != nil {
		return err
	}
	it := &s.items[i]
	if it.RevealedText == it.Text && !it.IsRevealing {
		return nil
	}

	it.RevealedText = it.Text
	it.IsRevealing = false
	s.publish()
	return nil
}

func (s *Store) typedIndex(id string) (int, error) {
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if !s.items[i].Typed {
			return -1, fmt.Errorf("%w: item %s is not typed", ErrUnknownItem, id)
		}
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownItem, id)
}
