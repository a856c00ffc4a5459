// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// SNAPSHOT TYPE
// =============================================================================

// Snapshot is the immutable read model published after every store mutation.
type Snapshot struct {
	Items        []Item `json:"items"`
	IsGenerating bool   `json:"is_generating"`

	// Epoch identifies the generation the snapshot belongs to.
	Epoch uint64 `json:"epoch"`
	// Version increases by one per mutation.
	Version uint64 `json:"version"`
}

// NewSnapshot copies items so later mutations cannot leak into the snapshot.
func NewSnapshot(items []Item, generating bool, epoch, version uint64) Snapshot {
	cp := make([]Item, len(items))
	copy(cp, items)
	return Snapshot{
		Items:        cp,
		IsGenerating: generating,
		Epoch:        epoch,
		Version:      version,
	}
}

// Len returns the number of items.
func (s Snapshot) Len() int {
	return len(s.Items)
}

// IsEmpty returns true if there are no items.
func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Item returns the item at index i and whether it exists.
func (s Snapshot) Item(i int) (Item, bool) {
	if i < 0 || i >= len(s.Items) {
		return Item{}, false
	}
	return s.Items[i], true
}

// LastUserIndex scans backward for the most recent user item.
// Returns -1 when no user item exists.
func (s Snapshot) LastUserIndex() int {
	for i := len(s.Items) - 1; i >= 0; i-- {
		if s.Items[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// IndexOf returns the index of the item with the given ID, or -1.
func (s Snapshot) IndexOf(id string) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// CountRole counts items with the given role.
func (s Snapshot) CountRole(role Role) int {
	n := 0
	for i := range s.Items {
		if s.Items[i].Role == role {
			n++
		}
	}
	return n
}

// LastReply joins the assistant chunks following the most recent user item.
func (s Snapshot) LastReply() string {
	start := s.LastUserIndex() + 1
	var out []byte
	for i := start; i < len(s.Items); i++ {
		if s.Items[i].Role != RoleChunk {
			continue
		}
		if len(out) > 0 {
			out = append(out, "\n\n"...)
		}
		out = append(out, s.Items[i].Text...)
	}
	return string(out)
}
