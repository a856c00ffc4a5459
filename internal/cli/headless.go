// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/muesli/reflow/wordwrap"

	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
	"github.com/jeranaias/anchorchat/internal/session"
	"github.com/jeranaias/anchorchat/internal/source"
)

// =============================================================================
// HEADLESS SESSION
// =============================================================================

// headless drives a session on a sched.Loop and prints items as they land.
// Everything except ask and do runs on the loop goroutine.
type headless struct {
	loop *sched.Loop
	sess *session.Session

	out      io.Writer
	enc      *json.Encoder // nil for text output
	width    int
	echoUser bool

	seen    map[string]struct{}
	printed int
	waiting bool
	done    chan struct{}
	err     error
}

// headlessOptions configures newHeadless.
type headlessOptions struct {
	Out   io.Writer
	JSON  bool
	Width int
	// EchoUser prints user items. The REPL leaves it off since the line
	// editor already shows the question.
	EchoUser bool
	// Source overrides the simulated responder (tests).
	Source func(sched.Scheduler) source.Source
}

func newHeadless(cfg *config.Config, logger *slog.Logger, opts headlessOptions) *headless {
	loop := sched.NewLoop()

	var src source.Source
	if opts.Source != nil {
		src = opts.Source(loop)
	} else {
		src = source.NewMock(loop, session.MockConfig(cfg), logger)
	}

	sopts := session.OptionsFromConfig(cfg)
	sopts.Sched = loop
	sopts.Source = src
	sopts.Reveal = false
	sopts.Logger = logger

	h := &headless{
		loop:     loop,
		sess:     session.New(sopts),
		out:      opts.Out,
		width:    opts.Width,
		echoUser: opts.EchoUser,
		seen:     make(map[string]struct{}),
		done:     make(chan struct{}, 1),
	}
	if opts.JSON {
		h.enc = json.NewEncoder(opts.Out)
	}
	if h.width <= 0 {
		h.width = DefaultTerminalWidth
	}
	h.sess.Subscribe(h.observe)
	return h
}

// run executes the loop until ctx is done.
func (h *headless) run(ctx context.Context) error {
	return h.loop.Run(ctx)
}

// ask submits prompt and blocks until the reply finished or failed. Blank
// prompts return conversation.ErrEmptyInput without waiting.
func (h *headless) ask(ctx context.Context, prompt string) error {
	submitted := make(chan error, 1)
	h.loop.Post(sched.Background, func() {
		err := h.sess.Submit(prompt)
		if err == nil {
			h.waiting = true
		}
		submitted <- err
	})

	select {
	case err := <-submitted:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-h.done:
		return h.writeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn on the loop and waits for it.
func (h *headless) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	h.loop.Post(sched.Background, func() {
		fn()
		close(finished)
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeErr is read after done fired, which orders it after the loop write.
func (h *headless) writeErr() error {
	return h.err
}

// observe prints items it has not printed before and signals the end of a
// turn.
func (h *headless) observe(snap model.Snapshot) {
	for _, it := range snap.Items {
		if it.Role == model.RoleStatus {
			continue
		}
		if _, ok := h.seen[it.ID]; ok {
			continue
		}
		h.seen[it.ID] = struct{}{}
		h.print(it)
	}
	if snap.Len() == 0 {
		clear(h.seen)
	}

	if h.waiting && !snap.IsGenerating {
		h.waiting = false
		h.done <- struct{}{}
	}
}

func (h *headless) print(it model.Item) {
	if h.err != nil {
		return
	}
	if h.enc != nil {
		if err := h.enc.Encode(it); err != nil {
			h.err = fmt.Errorf("failed to write item %s: %w", it.ID, err)
		}
		return
	}

	var line string
	switch it.Role {
	case model.RoleUser:
		if !h.echoUser {
			return
		}
		if h.printed > 0 {
			fmt.Fprintln(h.out, RenderSeparator(h.width))
		}
		line = PromptStyle.Render("> ") + it.Text
	case model.RoleChunk:
		line = wordwrap.String(it.Text, h.width)
	case model.RoleError:
		line = ErrorStyle.Render(it.Text)
	default:
		return
	}
	h.printed++
	if _, err := fmt.Fprintln(h.out, line); err != nil {
		h.err = fmt.Errorf("failed to write transcript: %w", err)
	}
}
