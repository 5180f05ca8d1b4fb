package main

import (
	"sync"
	"time"
)

// roundTimer is one countdown for one room. Closing stop suppresses any
// tick or expiry that has not yet been delivered.
type roundTimer struct {
	stop chan struct{}
	once sync.Once
}

func newRoundTimer() *roundTimer {
	return &roundTimer{stop: make(chan struct{})}
}

func (t *roundTimer) cancel() {
	t.once.Do(func() { close(t.stop) })
}

// startRoundLocked begins a countdown of the given number of intervals,
// cancelling and replacing any timer already running for the room.
// Assumes rm.mu is held.
func (rm *Room) startRoundLocked(seconds int, interval time.Duration) {
	if rm.timer != nil {
		rm.timer.cancel()
	}

	t := newRoundTimer()
	rm.timer = t

	go rm.countdown(t, seconds, interval)
}

func (rm *Room) cancelRound() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.cancelRoundLocked()
}

func (rm *Room) cancelRoundLocked() {
	if rm.timer != nil {
		rm.timer.cancel()
		rm.timer = nil
	}
}

// countdown broadcasts seconds-1 .. 1 as timer events, then a single
// timeUp. The stop channel is re-checked under the room lock before every
// emission, so a cancelled timer never delivers a ghost tick.
func (rm *Room) countdown(t *roundTimer, seconds int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	remaining := seconds
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}

		remaining--

		rm.mu.Lock()

		select {
		case <-t.stop:
			rm.mu.Unlock()
			return
		default:
		}

		if remaining <= 0 {
			if rm.timer == t {
				rm.timer = nil
			}
			rm.broadcastLocked(TimeUpMessage{Type: "timeUp", Room: rm.id})
			rm.mu.Unlock()
			return
		}

		rm.broadcastLocked(TimerMessage{Type: "timer", Room: rm.id, SecondsRemaining: remaining})
		rm.mu.Unlock()
	}
}
