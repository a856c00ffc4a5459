// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the config and UI packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth, StringWidth, PadRight: terminal cell aware layout
//   - SingleLine: collapse text for one-line previews
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
package util
