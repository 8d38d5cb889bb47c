package playback

import (
	"sync"

	"github.com/google/uuid"
)

// Notifier fans state snapshots out to subscribers. Adapters embed one
// and publish after every transition.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]func(State)
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]func(State))}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (n *Notifier) Subscribe(fn func(State)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := uuid.New().String()
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish delivers a snapshot to every subscriber. Listeners run on the
// caller's goroutine so deliveries stay serialized with transitions.
func (n *Notifier) Publish(s State) {
	n.mu.RLock()
	subs := make([]func(State), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.RUnlock()
	for _, fn := range subs {
		fn(s)
	}
}
