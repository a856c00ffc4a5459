// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session wires one conversation together on a single loop.
//
// # Key Types
//
//   - Session: store, response source, typewriter and anchor controller
//   - Status: counters and state for status bars
//
// # Usage
//
//	loop := sched.NewLoop()
//	s := session.New(session.Options{
//	    Sched:  loop,
//	    Source: source.NewMock(loop, source.DefaultMockConfig(), nil),
//	    Reveal: true,
//	})
//	loop.Post(sched.Background, func() { _ = s.Submit("hello") })
//
// Stream callbacks are posted back onto the loop stamped with the epoch of
// the turn that started them. Reset advances the epoch, so callbacks from an
// abandoned stream are dropped before they touch the store.
package session
