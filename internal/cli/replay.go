// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/conversation"
	"github.com/jeranaias/anchorchat/internal/session"
)

// ErrTurnFailed is returned by replay when at least one reply failed.
var ErrTurnFailed = errors.New("one or more replies failed")

type replayOptions struct {
	json      bool
	instant   bool
	failAfter int
	width     int
}

func replayCmd(a *app) *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay [prompts...]",
		Short: "Run prompts without a UI and print the transcript",
		Long: `Submit each prompt in turn, wait for its reply, and print the conversation.

Prompts come from the arguments, or one per line from stdin when none are
given. Blank prompts are skipped.`,
		Example: `  anchorchat replay "first question" "second question"
  printf 'one\ntwo\n' | anchorchat replay --json --instant`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts := args
			if len(prompts) == 0 {
				var err error
				prompts, err = readPrompts(cmd.InOrStdin())
				if err != nil {
					return &CommandError{Command: "replay", Action: "read stdin", Err: err}
				}
			}
			if len(prompts) == 0 {
				return &UsageError{
					Reason:  "replay needs at least one prompt",
					Example: `anchorchat replay "What is a scroll anchor?"`,
				}
			}
			if !cmd.Flags().Changed("fail-after") {
				opts.failAfter = -1
			}
			opts.width = transcriptWidth(opts.width)
			return runReplay(cmd.Context(), a, cmd.OutOrStdout(), cmd.ErrOrStderr(), prompts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "print items as JSON lines")
	cmd.Flags().BoolVar(&opts.instant, "instant", false, "stream without thinking or fragment delays")
	cmd.Flags().IntVar(&opts.failAfter, "fail-after", 0, "fail each reply after N fragments (overrides source.fail_after)")
	cmd.Flags().IntVar(&opts.width, "width", 0, "wrap width for text output (default: terminal width)")
	return cmd
}

// readPrompts returns the non-blank lines of r.
func readPrompts(r io.Reader) ([]string, error) {
	var prompts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts, sc.Err()
}

// replayConfig applies the command's flags to a copy of the loaded config.
func replayConfig(cfg *config.Config, opts replayOptions) *config.Config {
	cfg = cfg.Clone()
	if opts.instant {
		cfg.Source.ThinkingMs = 0
		cfg.Source.MinDelayMs = 0
		cfg.Source.MaxDelayMs = 0
	}
	if opts.failAfter >= 0 {
		cfg.Source.FailAfter = opts.failAfter
	}
	return cfg
}

func runReplay(ctx context.Context, a *app, out, stderr io.Writer, prompts []string, opts replayOptions) error {
	logger, err := a.headlessLogger(stderr)
	if err != nil {
		return err
	}

	h := newHeadless(replayConfig(a.cfg, opts), logger, headlessOptions{
		Out:      out,
		JSON:     opts.json,
		Width:    opts.width,
		EchoUser: true,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := h.run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		for _, p := range prompts {
			if err := h.ask(gctx, p); err != nil {
				if errors.Is(err, conversation.ErrEmptyInput) {
					continue
				}
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	h.sess.Close()
	if err != nil {
		return &CommandError{Command: "replay", Action: "run", Err: err}
	}

	st := h.sess.GetStatus()
	logger.Info("replay finished",
		"turns", st.Turns,
		"failures", st.Failures,
		"duration", session.FormatDuration(st.Duration),
	)
	if st.Failures > 0 {
		return fmt.Errorf("%d of %d: %w", st.Failures, st.Turns, ErrTurnFailed)
	}
	return nil
}
