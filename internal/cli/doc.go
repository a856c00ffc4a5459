// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the anchorchat command line on cobra.
//
// # Commands
//
//   - anchorchat: full-screen chat (the default)
//   - chat: line-by-line chat with history, for terminals without the TUI
//   - replay: submit prompts headlessly and print the transcript
//   - config: print the effective config, or get/set single keys
//   - version: print version information
//
// The headless commands run the same session as the TUI, driven by a
// sched.Loop instead of the Bubble Tea program, with the typewriter off.
//
// # Usage
//
//	func main() {
//	    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	    defer stop()
//	    os.Exit(cli.Execute(ctx, cli.BuildInfo{Version: Version}))
//	}
//
// Errors map to exit codes through GetExitCode: usage errors exit 2, config
// errors exit 3, anything else exits 1.
package cli
