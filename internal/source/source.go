// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package source provides response sources: collaborators that produce a reply
// as an ordered series of text fragments delivered over time.
//
// Sources deliver every callback through a sched.Scheduler, so callbacks run
// on the conversation loop and never race with store mutations. Cancelling a
// stream is best effort; the conversation store still checks epoch tokens
// before applying anything a source delivers.
package source

import (
	"errors"
	"strings"

	"github.com/jeranaias/anchorchat/internal/model"
)

// =============================================================================
// SOURCE CONTRACT
// =============================================================================

// ErrInjectedFailure is reported by sources configured to fail mid-stream.
var ErrInjectedFailure = errors.New("response stream failed")

// Turn is the input a source answers.
type Turn struct {
	Prompt  string
	History []model.Item
}

// Source produces a finite ordered sequence of fragments for a turn, then
// exactly one of onComplete or onError.
type Source interface {
	StartStream(turn Turn, onFragment func(string), onComplete func(), onError func(error)) (cancel func())
}

// Func adapts an ordinary function to the Source interface.
type Func func(turn Turn, onFragment func(string), onComplete func(), onError func(error)) func()

// StartStream calls f.
func (f Func) StartStream(turn Turn, onFragment func(string), onComplete func(), onError func(error)) func() {
	return f(turn, onFragment, onComplete, onError)
}

// =============================================================================
// FRAGMENTING
// =============================================================================

// DefaultResponse is the reply the mock source streams when none is configured.
const DefaultResponse = "This is a simulated AI response.\n\n" +
	"I am built with Go and Bubble Tea.\n\n" +
	"I am streaming this text chunk by chunk so each paragraph arrives as its own item."

// Fragments splits a response into paragraph blocks. Blocks are trimmed and
// empty blocks are skipped.
func Fragments(response string) []string {
	response = strings.ReplaceAll(response, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(response, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		out = append(out, block)
	}
	return out
}
