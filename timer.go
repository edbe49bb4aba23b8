package main

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// countdowns is the push realization of the round timer: one active
// countdown goroutine per room, ticking once per second, broadcasting the
// remaining time, and ending the round when the clock runs out or every
// player has voted. Countdowns are keyed 1:1 by room code; starting a new
// one for a room tears down any existing one first.
type countdowns struct {
	mu     sync.Mutex
	active map[string]chan struct{}
	clock  clockwork.Clock
}

func newCountdowns(clock clockwork.Clock) *countdowns {
	return &countdowns{
		active: make(map[string]chan struct{}),
		clock:  clock,
	}
}

func (t *countdowns) start(room *Room, hub *connHub) {
	t.mu.Lock()

	if prev, ok := t.active[room.Code]; ok {
		close(prev)
	}

	stop := make(chan struct{})
	t.active[room.Code] = stop

	t.mu.Unlock()

	go t.run(room, hub, stop)
}

func (t *countdowns) stop(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.active[code]; ok {
		close(prev)
		delete(t.active, code)
	}
}

// clear removes bookkeeping for a countdown that ended on its own. The
// stop channel identifies the entry, so a newer countdown for the same
// room is left untouched.
func (t *countdowns) clear(code string, stop chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[code] == stop {
		delete(t.active, code)
	}
}

func (t *countdowns) run(room *Room, hub *connHub, stop chan struct{}) {
	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			timeLeft, allVoted, ok := room.Tick()
			if !ok {
				// round already ended elsewhere
				t.clear(room.Code, stop)

				return
			}

			hub.broadcast(room.Code, serverMessage{
				Type:    msgGameState,
				Payload: tickPayload{TimeLeft: timeLeft},
			}, nil)

			if timeLeft <= 0 || allVoted {
				t.clear(room.Code, stop)
				hub.finishRound(room)

				return
			}
		}
	}
}
