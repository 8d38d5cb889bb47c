// Package playback provides the shared playback state model, the
// command interface implemented by every backend adapter, and the
// interpolation tick clock.
package playback

import (
	"time"

	"github.com/osa030/cuebox/internal/domain/track"
)

// Kind identifies a playback backend.
type Kind int

const (
	KindLocal Kind = iota // in-process dual-renderer engine
	KindRoomSpeaker
	KindTokenDevice
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRoomSpeaker:
		return "roomSpeaker"
	case KindTokenDevice:
		return "tokenDevice"
	default:
		return "unknown"
	}
}

// Status represents the transport status.
type Status int

const (
	StatusPaused Status = iota
	StatusPlaying
)

// String returns the wire representation of the status.
func (s Status) String() string {
	if s == StatusPlaying {
		return "PLAYING"
	}
	return "PAUSED"
}

// ParseStatus maps a wire status string onto a Status. Anything that is
// not "PLAYING" reads as paused.
func ParseStatus(s string) Status {
	if s == "PLAYING" {
		return StatusPlaying
	}
	return StatusPaused
}

// PlayMode is a bitmask of shuffle and repeat.
type PlayMode uint8

const (
	ModeShuffle PlayMode = 1 << iota
	ModeRepeat
)

// Has reports whether all bits of m are set.
func (p PlayMode) Has(m PlayMode) bool { return p&m == m }

// Toggle returns the mode with the bits of m flipped.
func (p PlayMode) Toggle(m PlayMode) PlayMode { return p ^ m }

// State is an immutable snapshot of a backend's playback state. It is
// replaced wholesale on every transition; adapters never hand out a
// snapshot that shares mutable slices with their internal state.
type State struct {
	Kind   Kind
	Queue  []track.Track
	// PlayOrder is a permutation of [0, len(Queue)). It defines the
	// playback sequence without reordering the queue itself.
	PlayOrder []int
	// Cursor indexes PlayOrder; -1 means stopped with nothing selected.
	Cursor int
	Status Status
	// PositionAnchorMs/PositionAnchorAt record the last authoritative
	// elapsed-time reading and when it was observed. Only authoritative
	// events write them; the tick clock interpolates from them.
	PositionAnchorMs int64
	PositionAnchorAt time.Time
	// CurrentTimeMs is the interpolated projection for progress
	// displays, refreshed on every transition and tick.
	CurrentTimeMs int64
	DurationMs    int64
	VolumePercent int
	PlayMode      PlayMode
}

// CurrentTrack returns the track the cursor points at, or nil when
// stopped.
func (s *State) CurrentTrack() *track.Track {
	qi := s.queueIndexAt(s.Cursor)
	if qi < 0 {
		return nil
	}
	t := s.Queue[qi]
	return &t
}

// NextTrack returns the track that plays after the current one, or nil.
// Stopped means no current track, so no next one either.
func (s *State) NextTrack() *track.Track {
	if s.Cursor < 0 {
		return nil
	}
	qi := s.queueIndexAt(s.Cursor + 1)
	if qi < 0 {
		return nil
	}
	t := s.Queue[qi]
	return &t
}

func (s *State) queueIndexAt(cursor int) int {
	if cursor < 0 || cursor >= len(s.PlayOrder) {
		return -1
	}
	qi := s.PlayOrder[cursor]
	if qi < 0 || qi >= len(s.Queue) {
		return -1
	}
	return qi
}

// Interpolated returns the estimated elapsed time at the given instant.
// While paused the estimate is frozen at the anchor; while playing it
// advances with wall time, clamped to [0, DurationMs].
func (s *State) Interpolated(now time.Time) int64 {
	if s.Status != StatusPlaying || s.PositionAnchorAt.IsZero() {
		return clampMs(s.PositionAnchorMs, s.DurationMs)
	}
	cur := s.PositionAnchorMs + now.Sub(s.PositionAnchorAt).Milliseconds()
	return clampMs(cur, s.DurationMs)
}

func clampMs(ms, durationMs int64) int64 {
	if ms < 0 {
		return 0
	}
	if durationMs > 0 && ms > durationMs {
		return durationMs
	}
	return ms
}

// Clone returns a deep copy of the snapshot.
func (s State) Clone() State {
	out := s
	out.Queue = make([]track.Track, len(s.Queue))
	copy(out.Queue, s.Queue)
	out.PlayOrder = make([]int, len(s.PlayOrder))
	copy(out.PlayOrder, s.PlayOrder)
	return out
}

// ClampVolume bounds a volume percentage to [0, 100].
func ClampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
