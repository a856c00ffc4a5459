// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation items and snapshots.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies what an item represents in the conversation log.
type Role string

const (
	RoleUser   Role = "user"
	RoleStatus Role = "assistant-status"
	RoleChunk  Role = "assistant-chunk"
	RoleError  Role = "assistant-error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// idPrefix keeps IDs readable in logs.
func (r Role) idPrefix() string {
	switch r {
	case RoleUser:
		return "u-"
	case RoleStatus:
		return "s-"
	case RoleChunk:
		return "c-"
	case RoleError:
		return "e-"
	default:
		return "x-"
	}
}

// StatusText is the placeholder shown while the responder is thinking.
const StatusText = "Thinking..."

// =============================================================================
// ITEM TYPE
// =============================================================================

// Item is one unit in the conversation log.
//
// Items are values: the store hands out copies inside snapshots, so holding
// an Item never aliases live state.
type Item struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`

	// Typewriter state. Typed marks that RevealedText is present; when it is,
	// RevealedText is always a prefix of Text.
	Typed        bool   `json:"typed,omitempty"`
	RevealedText string `json:"revealed_text,omitempty"`
	IsRevealing  bool   `json:"is_revealing,omitempty"`
}

// NewItem creates an item with a fresh, never reused ID.
func NewItem(role Role, text string) Item {
	return Item{
		ID:        NewID(role),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// NewUserItem creates a user question item.
func NewUserItem(text string) Item {
	return NewItem(RoleUser, text)
}

// NewStatusItem creates the "thinking" placeholder.
func NewStatusItem() Item {
	return NewItem(RoleStatus, StatusText)
}

// NewChunkItem creates an assistant chunk. When typed is true the chunk starts
// hidden and is revealed by the typewriter.
func NewChunkItem(text string, typed bool) Item {
	it := NewItem(RoleChunk, text)
	if typed {
		it.Typed = true
		it.IsRevealing = len(text) > 0
	}
	return it
}

// NewErrorItem creates the terminal marker appended when a stream fails.
func NewErrorItem(msg string) Item {
	return NewItem(RoleError, msg)
}

// NewID returns a unique item ID for the role.
func NewID(role Role) string {
	return role.idPrefix() + uuid.NewString()
}

// Display returns the text a presentation layer should show right now.
func (it Item) Display() string {
	if it.Typed {
		return it.RevealedText
	}
	return it.Text
}

// RevealDone reports whether the typewriter has nothing left to do.
func (it Item) RevealDone() bool {
	return !it.Typed || (!it.IsRevealing && it.RevealedText == it.Text)
}

// ValidReveal reports whether revealed may replace the item's current
// RevealedText: it must be a prefix of Text and must not shrink.
func (it Item) ValidReveal(revealed string) bool {
	if !strings.HasPrefix(it.Text, revealed) {
		return false
	}
	return len(revealed) >= len(it.RevealedText)
}
