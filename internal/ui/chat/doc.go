// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view for anchorchat.

The view is a Bubble Tea model wrapped around a session.Session. It owns no
conversation state of its own: every change arrives as a model.Snapshot from
the session and is laid out by the conversation pane.

# Key Components

## Model (model.go)

  - Input line, disabled while a reply is generating
  - Spinner next to the "Thinking..." status item
  - Key handling: submit, clear, copy reply, typewriter toggle, scrolling
  - Config hot reload through ConfigReloadMsg

## Pane (pane.go)

The pane lays out the latest snapshot into a bubbles viewport and records
the first line of every item. It implements anchor.Viewport, so the anchor
controller scrolls it directly, and after every layout it reports a
content-size signal back to the controller. Below the last item it reserves
a footer spacer so a short reply still lets the question reach the top edge.

## Rendering (render.go, view.go)

User questions render as right-aligned bubbles, assistant chunks as bordered
blocks (optionally through glamour), errors in the error style. Finished
blocks are cached by item ID.

# Scheduling

The session runs on a sched.Program. Timers and stream callbacks queue tasks
on it and wake the program with a sched.WakeMsg; Update drains the queue, so
every store mutation happens on the Bubble Tea goroutine.

# Usage

	m := chat.New(chat.Options{Config: cfg, Logger: logger})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.Program().SetSender(p.Send)
	_, err := p.Run()
*/
package chat
