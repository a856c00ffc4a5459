// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/conversation"
	"github.com/jeranaias/anchorchat/internal/session"
)

// =============================================================================
// CHAT CLI (LINE EDITOR)
// =============================================================================

// ChatCLI provides input history and line editing for the chat REPL.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor with history loaded from the config
// directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt. Non-blank lines go to history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history, readable by the owner only.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func chatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat line by line without the full-screen UI",
		Long: `Start a line-oriented chat. Replies print as they stream in.

Commands:
  /reset    clear the conversation
  /status   show session statistics
  /help     show this help
  /quit     leave (Ctrl+D works too)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !IsTTY() {
				return &UsageError{
					Reason:  "chat needs an interactive terminal; pipe prompts to replay instead",
					Example: `printf 'first\nsecond\n' | anchorchat replay`,
				}
			}
			return runChat(cmd.Context(), a, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runChat(ctx context.Context, a *app, out, stderr io.Writer) error {
	logger, err := a.headlessLogger(stderr)
	if err != nil {
		return err
	}

	h := newHeadless(a.cfg, logger, headlessOptions{Out: out, Width: transcriptWidth(0)})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		h.run(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
		h.sess.Close()
	}()

	line := NewChatCLI()
	defer line.Close()

	fmt.Fprintf(out, "%s %s\n", PromptStyle.Render("anchorchat"), DimStyle.Render("session "+h.sess.ID()))
	fmt.Fprintln(out, DimStyle.Render("Type /help for commands, /quit to leave."))

	for {
		input, err := line.ReadInput("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return &CommandError{Command: "chat", Action: "read input", Err: err}
		}

		input = strings.TrimSpace(input)
		if strings.HasPrefix(input, "/") {
			quit, err := handleSlashCommand(ctx, h, out, input)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		if err := h.ask(ctx, input); err != nil {
			if errors.Is(err, conversation.ErrEmptyInput) {
				continue
			}
			return &CommandError{Command: "chat", Action: "ask", Err: err}
		}
	}
}

// handleSlashCommand runs a REPL command. It reports whether to quit.
func handleSlashCommand(ctx context.Context, h *headless, out io.Writer, input string) (bool, error) {
	name, _, _ := strings.Cut(input, " ")
	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/reset", "/clear":
		if err := h.do(ctx, h.sess.Reset); err != nil {
			return false, err
		}
		fmt.Fprintln(out, SuccessStyle.Render("Conversation cleared"))

	case "/status":
		var st session.Status
		if err := h.do(ctx, func() { st = h.sess.GetStatus() }); err != nil {
			return false, err
		}
		printStatus(out, st)

	case "/help", "/h", "/?":
		printChatHelp(out)

	default:
		fmt.Fprintf(out, "%s %s\n", ErrorStyle.Render("Unknown command:"), name)
		fmt.Fprintln(out, DimStyle.Render("Type /help for commands."))
	}
	return false, nil
}

func printStatus(out io.Writer, st session.Status) {
	rows := [][2]string{
		{"Session", st.SessionID},
		{"Duration", session.FormatDuration(st.Duration)},
		{"Turns", fmt.Sprint(st.Turns)},
		{"Failures", fmt.Sprint(st.Failures)},
		{"Items", fmt.Sprint(st.Items)},
	}
	for _, r := range rows {
		fmt.Fprintf(out, "  %s %s\n", DimStyle.Render(fmt.Sprintf("%-9s", r[0])), r[1])
	}
}

func printChatHelp(out io.Writer) {
	cmds := [][2]string{
		{"/reset", "Clear the conversation"},
		{"/status", "Show session statistics"},
		{"/help", "Show this help"},
		{"/quit", "Leave the chat"},
	}
	for _, c := range cmds {
		fmt.Fprintf(out, "  %s %s\n", PromptStyle.Render(fmt.Sprintf("%-8s", c[0])), c[1])
	}
}
