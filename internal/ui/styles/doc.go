// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the anchorchat TUI.

All colors use Lip Gloss AdaptiveColor, so one palette serves light and dark
terminals. NewTheme pins the background for the "light" and "dark" themes and
asks the terminal via termenv for "auto".

# Roles

  - user: right-aligned blue bubble
  - assistant-status: muted italic "Thinking..." with a spinner
  - assistant-chunk: purple text behind a left rule
  - assistant-error: red text behind a red left rule

States in the status bar carry an ASCII indicator (StatusIndicators) next to
their color.
*/
package styles
