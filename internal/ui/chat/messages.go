// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/anchorchat/internal/config"
)

// =============================================================================
// CONFIG MESSAGES
// =============================================================================

// ConfigReloadMsg carries a configuration re-read after the file changed.
type ConfigReloadMsg struct {
	Config *config.Config
	Err    error
}

// WatchConfig watches path and delivers every reload to the program through
// send, normally (*tea.Program).Send. It returns once the watcher is running;
// the watcher stops when ctx is done.
func WatchConfig(ctx context.Context, path string, send func(tea.Msg)) error {
	return config.Watch(ctx, path, config.DefaultDebounce, func(cfg *config.Config, err error) {
		send(ConfigReloadMsg{Config: cfg, Err: err})
	})
}

// =============================================================================
// NOTICE MESSAGES
// =============================================================================

// noticeTTL is how long a transient notice stays in the status bar.
const noticeTTL = 3 * time.Second

// noticeExpiredMsg clears the notice with the matching sequence number.
type noticeExpiredMsg struct {
	seq int
}

func expireNotice(seq int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}
