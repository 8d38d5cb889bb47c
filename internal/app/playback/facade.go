package playback

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/track"
)

// Facade is the thin backend-agnostic controller handed to UI
// collaborators. It forwards commands to the active adapter and relays
// its state changes; switching backends discards the previous adapter.
type Facade struct {
	mu       sync.Mutex
	backend  Backend
	notifier *Notifier
	unsub    func()
}

// NewFacade creates a facade with no backend bound.
func NewFacade() *Facade {
	return &Facade{notifier: NewNotifier()}
}

// SwitchTo binds a new active adapter, closing the previous one. The
// switch always succeeds: a close failure on an unreachable backend is
// logged and dropped.
func (f *Facade) SwitchTo(b Backend) {
	f.mu.Lock()
	prev := f.backend
	prevUnsub := f.unsub
	f.backend = b
	f.unsub = nil
	if b != nil {
		f.unsub = b.Subscribe(f.notifier.Publish)
	}
	f.mu.Unlock()

	if prevUnsub != nil {
		prevUnsub()
	}
	if prev != nil {
		if err := prev.Close(); err != nil {
			zlog.Warn().Err(err).Stringer("backend", prev.Kind()).Msg("closing previous backend")
		}
	}
	if b != nil {
		f.notifier.Publish(b.State())
	}
}

// Backend returns the active adapter, or nil.
func (f *Facade) Backend() Backend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend
}

// Subscribe registers a state listener that survives backend switches.
func (f *Facade) Subscribe(fn func(State)) func() {
	return f.notifier.Subscribe(fn)
}

// State returns the active adapter's snapshot; the zero State when no
// backend is bound.
func (f *Facade) State() State {
	if b := f.Backend(); b != nil {
		return b.State()
	}
	return State{Cursor: -1}
}

func (f *Facade) with(fn func(Backend) error) error {
	b := f.Backend()
	if b == nil {
		return ErrNoBackend
	}
	return fn(b)
}

func (f *Facade) Play() error  { return f.with(Backend.Play) }
func (f *Facade) Pause() error { return f.with(Backend.Pause) }

func (f *Facade) SkipTo(index int) error {
	return f.with(func(b Backend) error { return b.SkipTo(index) })
}

func (f *Facade) SkipBy(count int) error {
	return f.with(func(b Backend) error { return b.SkipBy(count) })
}

func (f *Facade) SeekTo(absoluteMs int64) error {
	return f.with(func(b Backend) error { return b.SeekTo(absoluteMs) })
}

func (f *Facade) SeekBy(deltaMs int64) error {
	return f.with(func(b Backend) error { return b.SeekBy(deltaMs) })
}

func (f *Facade) ReplaceQueue(tracks []track.Track) error {
	return f.with(func(b Backend) error { return b.ReplaceQueue(tracks) })
}

func (f *Facade) AppendToQueue(tracks []track.Track) error {
	return f.with(func(b Backend) error { return b.AppendToQueue(tracks) })
}

func (f *Facade) InsertAfterCursor(tracks []track.Track) error {
	return f.with(func(b Backend) error { return b.InsertAfterCursor(tracks) })
}

func (f *Facade) SelectPlaylist(id string, startIndex int) error {
	return f.with(func(b Backend) error { return b.SelectPlaylist(id, startIndex) })
}

func (f *Facade) SetVolumeTo(percent int) error {
	return f.with(func(b Backend) error { return b.SetVolumeTo(percent) })
}

func (f *Facade) ChangeVolumeBy(delta int) error {
	return f.with(func(b Backend) error { return b.ChangeVolumeBy(delta) })
}

func (f *Facade) ToggleShuffle() error { return f.with(Backend.ToggleShuffle) }
func (f *Facade) ToggleRepeat() error  { return f.with(Backend.ToggleRepeat) }

// Close shuts the facade down, closing the active adapter if any.
func (f *Facade) Close() error {
	f.mu.Lock()
	b := f.backend
	unsub := f.unsub
	f.backend = nil
	f.unsub = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if b != nil {
		return b.Close()
	}
	return nil
}
