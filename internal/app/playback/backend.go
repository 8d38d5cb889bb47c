package playback

import "github.com/osa030/cuebox/internal/domain/track"

// Backend is the command interface shared by all playback adapters.
// Every command performs exactly one logical step per call and returns
// once the adapter has accepted it; for networked backends the visible
// state changes only when the authoritative push arrives.
type Backend interface {
	Kind() Kind

	Play() error
	Pause() error
	SkipTo(index int) error
	SkipBy(count int) error
	SeekTo(absoluteMs int64) error
	SeekBy(deltaMs int64) error
	ReplaceQueue(tracks []track.Track) error
	AppendToQueue(tracks []track.Track) error
	InsertAfterCursor(tracks []track.Track) error
	SelectPlaylist(id string, startIndex int) error
	SetVolumeTo(percent int) error
	ChangeVolumeBy(delta int) error
	ToggleShuffle() error
	ToggleRepeat() error

	// State returns the current snapshot with the interpolated time
	// refreshed.
	State() State
	// Subscribe registers a state-change listener and returns its
	// unsubscribe function. Listeners receive full snapshots.
	Subscribe(fn func(State)) func()
	// Close releases the adapter's resources. The adapter's in-memory
	// state is discarded; only the Local Engine persists across runs.
	Close() error
}
