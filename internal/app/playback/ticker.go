package playback

import "time"

// DefaultTickInterval is the progress interpolation period.
const DefaultTickInterval = 250 * time.Millisecond

// Ticker periodically re-publishes an interpolated snapshot while
// playback is running. It is a read-only projection: the authoritative
// anchor fields are never written here.
type Ticker struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewTicker creates a ticker with the given interval; zero or negative
// falls back to the default.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Ticker{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the tick loop until Stop is called. snapshot must return
// the current state; publish receives a copy with CurrentTimeMs
// refreshed. Ticks while paused are dropped so the display freezes at
// the anchor.
func (t *Ticker) Run(snapshot func() State, publish func(State)) {
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case now := <-ticker.C:
				s := snapshot()
				if s.Status != StatusPlaying {
					continue
				}
				s.CurrentTimeMs = s.Interpolated(now)
				publish(s)
			}
		}
	}()
}

// Stop terminates the tick loop and waits for it to exit.
func (t *Ticker) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
}
