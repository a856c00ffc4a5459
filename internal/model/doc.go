// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation items and snapshots.
//
// This package defines the core domain types shared by the store, the
// typewriter, the scroll anchor controller and the terminal view.
//
// # Key Types
//
//   - Item: one entry in the append-only conversation log
//   - Role: user question, assistant status placeholder, assistant chunk or error marker
//   - Snapshot: immutable copy of the log plus the generation flag
//
// # Usage
//
//	snap := store.Snapshot()
//	if i := snap.LastUserIndex(); i >= 0 {
//	    fmt.Println(snap.Items[i].Text)
//	}
package model
