// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// TOKEN TESTS
// =============================================================================

func TestScope_AdvanceInvalidatesOldTokens(t *testing.T) {
	s := NewScope()
	first := s.Token()
	require.True(t, first.Valid())

	second := s.Advance()
	assert.False(t, first.Valid(), "token from previous epoch must be stale")
	assert.True(t, second.Valid())
	assert.Equal(t, uint64(1), second.Epoch())
	assert.Equal(t, uint64(1), s.Epoch())
}

func TestBackgroundTokenNeverExpires(t *testing.T) {
	assert.True(t, Background.Valid())
}

// =============================================================================
// VIRTUAL SCHEDULER TESTS
// =============================================================================

func TestVirtual_RunsInDueOrder(t *testing.T) {
	v := NewVirtual(epoch0)
	var got []string

	v.After(30*time.Millisecond, Background, func() { got = append(got, "c") })
	v.After(10*time.Millisecond, Background, func() { got = append(got, "a") })
	v.After(10*time.Millisecond, Background, func() { got = append(got, "b") })

	assert.Equal(t, 0, v.Advance(5*time.Millisecond))
	assert.Equal(t, 2, v.Advance(10*time.Millisecond))
	assert.Equal(t, []string{"a", "b"}, got)

	v.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, epoch0.Add(time.Second+15*time.Millisecond), v.Now())
}

func TestVirtual_NestedSchedulingWithinAdvance(t *testing.T) {
	v := NewVirtual(epoch0)
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		if ticks < 5 {
			v.After(10*time.Millisecond, Background, tick)
		}
	}
	v.After(10*time.Millisecond, Background, tick)

	v.Advance(35 * time.Millisecond)
	assert.Equal(t, 3, ticks)

	v.Advance(time.Second)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, 0, v.Pending())
}

func TestVirtual_StaleTokenDropped(t *testing.T) {
	v := NewVirtual(epoch0)
	s := NewScope()
	ran := false

	v.After(10*time.Millisecond, s.Token(), func() { ran = true })
	s.Advance()
	v.Advance(time.Second)

	assert.False(t, ran)
	_, dropped := v.Stats()
	assert.Equal(t, 1, dropped)
}

func TestVirtual_StopTimer(t *testing.T) {
	v := NewVirtual(epoch0)
	ran := false
	tm := v.After(10*time.Millisecond, Background, func() { ran = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second stop reports nothing to stop")
	assert.Equal(t, 0, v.Pending())

	v.Advance(time.Second)
	assert.False(t, ran)
}

func TestVirtual_RunUntilIdle(t *testing.T) {
	v := NewVirtual(epoch0)
	count := 0
	for i := 1; i <= 4; i++ {
		v.After(time.Duration(i)*time.Second, Background, func() { count++ })
	}

	assert.Equal(t, 4, v.RunUntilIdle(100))
	assert.Equal(t, 4, count)
	assert.Equal(t, epoch0.Add(4*time.Second), v.Now())
}

// =============================================================================
// LOOP TESTS
// =============================================================================

func TestLoop_RunsPostedTasksInOrder(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(Background, func() {
			got = append(got, i)
			if i == 9 {
				close(done)
			}
		})
	}

	go func() { _ = l.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not run posted tasks")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoop_PostFromInsideTaskDoesNotBlock(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	l.Post(Background, func() {
		for i := 0; i < 1000; i++ {
			l.Post(Background, func() {})
		}
		l.Post(Background, func() { close(done) })
	})
	go func() { _ = l.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested posts deadlocked")
	}
}

func TestLoop_AfterWithStaleTokenSkipped(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	s := NewScope()
	var mu sync.Mutex
	ran := false
	l.After(5*time.Millisecond, s.Token(), func() {
		mu.Lock()
		ran = true
		mu.Unlock()
	})
	s.Advance()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran)
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// =============================================================================
// PROGRAM SCHEDULER TESTS
// =============================================================================

func TestProgram_PostWakesAndDrains(t *testing.T) {
	wakes := make(chan tea.Msg, 10)
	p := NewProgram(func(msg tea.Msg) { wakes <- msg })

	var got []string
	p.Post(Background, func() { got = append(got, "one") })
	p.Post(Background, func() { got = append(got, "two") })

	select {
	case msg := <-wakes:
		assert.IsType(t, WakeMsg{}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no wake message sent")
	}

	assert.Equal(t, 2, p.Drain())
	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, 0, p.Pending())
}

func TestProgram_DrainDropsStaleTasks(t *testing.T) {
	p := NewProgram(nil)
	s := NewScope()
	ran := false
	p.Post(s.Token(), func() { ran = true })
	s.Advance()

	assert.Equal(t, 0, p.Drain())
	assert.False(t, ran)
	_, dropped := p.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestProgram_SetSenderWhileTimersPost(t *testing.T) {
	const n = 50
	p := NewProgram(nil)
	wakes := make(chan tea.Msg, 2*n)

	ran := 0
	for i := 0; i < n; i++ {
		p.After(time.Millisecond, Background, func() { ran++ })
	}
	p.SetSender(func(msg tea.Msg) { wakes <- msg })

	require.Eventually(t, func() bool { return p.Pending() == n }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, n, p.Drain())
	assert.Equal(t, n, ran)

	p.Post(Background, func() {})
	select {
	case msg := <-wakes:
		assert.IsType(t, WakeMsg{}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no wake message after SetSender")
	}
}
