// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package internal contains race detection tests that drive several
// components at once.
//
// Run with: go test -race -v ./internal/...
//
// Stream callbacks, typewriter ticks and anchor timers all fire on their own
// timer goroutines and hop onto one loop. These tests hammer that hop from
// many goroutines and check the conversation invariants on every snapshot.
package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/anchorchat/internal/anchor"
	"github.com/jeranaias/anchorchat/internal/logging"
	"github.com/jeranaias/anchorchat/internal/model"
	"github.com/jeranaias/anchorchat/internal/sched"
	"github.com/jeranaias/anchorchat/internal/session"
	"github.com/jeranaias/anchorchat/internal/source"
)

// =============================================================================
// TEST CONFIGURATION
// =============================================================================

const (
	// Number of concurrent goroutines for race tests
	raceConcurrency = 100
	// Number of iterations per goroutine
	raceIterations = 50
	// Timeout for race tests
	raceTimeout = 30 * time.Second
)

// runLoop starts l and returns a stop function that waits for it to exit.
func runLoop(t *testing.T, l *sched.Loop) (context.Context, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), raceTimeout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	return ctx, func() {
		cancel()
		<-done
	}
}

// onLoop runs fn on l and waits for it.
func onLoop(ctx context.Context, t *testing.T, l *sched.Loop, fn func()) {
	t.Helper()
	finished := make(chan struct{})
	l.Post(sched.Background, func() {
		fn()
		close(finished)
	})
	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("loop did not run the task")
	}
}

// checkSnapshot reports every conversation invariant the snapshot breaks.
func checkSnapshot(snap model.Snapshot) []string {
	var bad []string
	ids := make(map[string]bool, snap.Len())
	statuses := 0
	for i, it := range snap.Items {
		if ids[it.ID] {
			bad = append(bad, "duplicate id "+it.ID)
		}
		ids[it.ID] = true

		if it.Role == model.RoleStatus {
			statuses++
			if i != snap.Len()-1 {
				bad = append(bad, "status item is not last")
			}
		}
		if it.Typed && !strings.HasPrefix(it.Text, it.RevealedText) {
			bad = append(bad, "revealed text is not a prefix of "+it.ID)
		}
	}
	if statuses > 1 {
		bad = append(bad, fmt.Sprintf("%d status items", statuses))
	}
	if statuses == 1 && !snap.IsGenerating {
		bad = append(bad, "status item while idle")
	}
	return bad
}

// =============================================================================
// SESSION CONCURRENCY TESTS
// =============================================================================

// TestConcurrency_SessionOnLoop submits, resets and reports layouts from many
// goroutines while real timers stream and type out replies.
func TestConcurrency_SessionOnLoop(t *testing.T) {
	loop := sched.NewLoop()
	ctx, stop := runLoop(t, loop)
	defer stop()

	src := source.NewMock(loop, source.MockConfig{
		Response: "one\n\ntwo\n\nthree",
		Thinking: time.Millisecond,
		MinDelay: 0,
		MaxDelay: 2 * time.Millisecond,
		Seed:     42,
	}, logging.Discard())
	sess := session.New(session.Options{
		Sched:          loop,
		Source:         src,
		Reveal:         true,
		TypeInterval:   time.Millisecond,
		AnchorFallback: time.Millisecond,
		Logger:         logging.Discard(),
	})

	var (
		violations atomic.Int64
		snapshots  atomic.Int64
		firstBad   atomic.Value
	)
	sess.Subscribe(func(snap model.Snapshot) {
		snapshots.Add(1)
		if bad := checkSnapshot(snap); len(bad) > 0 {
			violations.Add(1)
			firstBad.CompareAndSwap(nil, strings.Join(bad, "; "))
		}
	})

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
		rejected atomic.Int64
	)
	for i := 0; i < raceConcurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < raceIterations/10; j++ {
				select {
				case <-ctx.Done():
					return
				default:
				}
				switch (idx + j) % 4 {
				case 0, 1:
					loop.Post(sched.Background, func() {
						if err := sess.Submit(fmt.Sprintf("q%d-%d", idx, j)); err == nil {
							accepted.Add(1)
						} else {
							rejected.Add(1)
						}
					})
				case 2:
					loop.Post(sched.Background, func() {
						sess.OnLayout(anchor.Layout{AverageItemHeight: 2, Generating: sess.Snapshot().IsGenerating, TopIndex: -1})
					})
				case 3:
					if j%3 == 0 {
						loop.Post(sched.Background, sess.Reset)
					}
				}
				time.Sleep(time.Duration(idx%3) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	// Let the last reply finish on its own.
	deadline := time.Now().Add(10 * time.Second)
	for {
		var generating, typing bool
		onLoop(ctx, t, loop, func() {
			generating = sess.Snapshot().IsGenerating
			typing = sess.Typewriter().Active() != ""
		})
		if !generating && !typing {
			break
		}
		require.True(t, time.Now().Before(deadline), "reply never finished")
		time.Sleep(5 * time.Millisecond)
	}

	if bad := firstBad.Load(); bad != nil {
		t.Errorf("first violation: %v", bad)
	}
	assert.Zero(t, violations.Load())
	assert.Positive(t, accepted.Load())
	assert.Positive(t, snapshots.Load())

	var st session.Status
	onLoop(ctx, t, loop, func() { st = sess.GetStatus() })
	assert.Equal(t, int(accepted.Load()), st.Turns)
	assert.Equal(t, int(rejected.Load()), st.Rejected)
	t.Logf("accepted %d, rejected %d, snapshots %d", accepted.Load(), rejected.Load(), snapshots.Load())
}

// TestConcurrency_StaleStreamAfterReset checks that nothing from a stream
// cancelled by Reset reaches the log, however the timers interleave.
func TestConcurrency_StaleStreamAfterReset(t *testing.T) {
	loop := sched.NewLoop()
	ctx, stop := runLoop(t, loop)
	defer stop()

	src := source.NewMock(loop, source.MockConfig{
		Response: "late\n\nlater",
		Thinking: 0,
		MinDelay: 0,
		MaxDelay: time.Millisecond,
		Seed:     7,
	}, logging.Discard())
	sess := session.New(session.Options{Sched: loop, Source: src, Logger: logging.Discard()})

	for i := 0; i < raceIterations; i++ {
		var err error
		onLoop(ctx, t, loop, func() {
			err = sess.Submit("question")
			sess.Reset()
		})
		require.NoError(t, err)
	}
	time.Sleep(20 * time.Millisecond)

	var snap model.Snapshot
	onLoop(ctx, t, loop, func() { snap = sess.Snapshot() })
	assert.True(t, snap.IsEmpty(), "stale fragments leaked: %v", snap.Items)
	assert.False(t, snap.IsGenerating)

	ran, dropped := loop.Stats()
	assert.Positive(t, ran)
	t.Logf("loop ran %d tasks, dropped %d", ran, dropped)
}

// =============================================================================
// BENCHMARK TESTS FOR CONCURRENCY OVERHEAD
// =============================================================================

// BenchmarkConcurrent_LoopPost benchmarks posting onto a running loop from
// parallel goroutines.
func BenchmarkConcurrent_LoopPost(b *testing.B) {
	loop := sched.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	var n atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			loop.Post(sched.Background, func() { n.Add(1) })
		}
	})
}
