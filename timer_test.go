package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountdown_TicksThenTimeUp(t *testing.T) {
	req := require.New(t)

	rm := newRoom("R1")
	c := newTestClient("A")
	rm.subscribe(c)

	rm.mu.Lock()
	rm.startRoundLocked(5, time.Millisecond)
	rm.mu.Unlock()

	// A round of n seconds ticks n-1 .. 1, then a single timeUp; no tick
	// carries 0.
	for want := 4; want >= 1; want-- {
		msg := nextMessage(t, c)
		tick, ok := msg.(TimerMessage)
		req.True(ok, "expected TimerMessage, got %T", msg)
		req.Equal(want, tick.SecondsRemaining)
	}

	msg := nextMessage(t, c)
	_, ok := msg.(TimeUpMessage)
	req.True(ok, "expected TimeUpMessage, got %T", msg)

	// The timer handle is released on expiry, and nothing follows timeUp.
	time.Sleep(20 * time.Millisecond)
	req.Empty(c.send)

	rm.mu.Lock()
	req.Nil(rm.timer)
	rm.mu.Unlock()
}

func TestCountdown_CancelSuppressesTicks(t *testing.T) {
	req := require.New(t)

	rm := newRoom("R1")
	c := newTestClient("A")
	rm.subscribe(c)

	rm.mu.Lock()
	rm.startRoundLocked(1000, time.Millisecond)
	rm.mu.Unlock()

	// Let a few ticks through, then cancel.
	nextMessage(t, c)
	nextMessage(t, c)

	rm.cancelRound()

	// Anything already queued is fine; nothing new may arrive afterwards,
	// and the terminal event never fires.
	for len(c.send) > 0 {
		msg := <-c.send
		_, ok := msg.(TimerMessage)
		req.True(ok, "expected only TimerMessage after cancel, got %T", msg)
	}

	time.Sleep(20 * time.Millisecond)
	req.Empty(c.send)

	rm.mu.Lock()
	req.Nil(rm.timer)
	rm.mu.Unlock()
}

func TestCountdown_StartReplacesActiveTimer(t *testing.T) {
	req := require.New(t)

	rm := newRoom("R1")
	c := newTestClient("A")
	rm.subscribe(c)

	rm.mu.Lock()
	rm.startRoundLocked(1000, time.Millisecond)
	first := rm.timer
	rm.startRoundLocked(5, time.Millisecond)
	second := rm.timer
	rm.mu.Unlock()

	req.NotSame(first, second)

	// Only the replacement runs to completion: a strictly decreasing
	// sequence ending in timeUp, with no interleaved ticks from the
	// cancelled countdown.
	last := 5
	for {
		msg := nextMessage(t, c)
		if _, ok := msg.(TimeUpMessage); ok {
			break
		}
		tick, ok := msg.(TimerMessage)
		req.True(ok, "expected TimerMessage, got %T", msg)
		req.Less(tick.SecondsRemaining, last)
		last = tick.SecondsRemaining
	}

	req.Equal(1, last)
}
