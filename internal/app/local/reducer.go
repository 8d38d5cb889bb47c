package local

import (
	"encoding/json"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/domain/track"
)

// op tags a reducer action. The whole transition table lives in apply;
// commands only construct actions.
type op int

const (
	opPlay op = iota
	opPause
	opSkipTo
	opSkipBy
	opAdvance // natural track end; same wrap rules as skipBy(1)
	opReplace
	opAppend
	opInsert
	opPlaylist
	opVolumeTo
	opVolumeBy
	opShuffle
	opRepeat
	opTime // authoritative position report from the live renderer
)

type action struct {
	op         op
	index      int
	count      int
	tracks     []track.Track
	volume     int
	positionMs int64
	durationMs int64
}

// dispatch runs one action through the reducer, persists the durable
// subset, re-syncs the renderers, and publishes the new snapshot.
// Transitions are serialized by the engine mutex; no transition
// interleaves with another.
func (e *Engine) dispatch(a action) {
	e.mu.Lock()
	prev := e.st
	next := e.apply(prev, a)
	next.CurrentTimeMs = next.Interpolated(e.now())
	e.st = next
	if a.op != opTime {
		e.persistLocked()
	}
	e.syncRenderersLocked(prev, a.op != opTime)
	snap := e.st.Clone()
	e.mu.Unlock()
	e.notifier.Publish(snap)
}

func (e *Engine) apply(st playback.State, a action) playback.State {
	now := e.now()
	switch a.op {
	case opPlay:
		if st.Status != playback.StatusPlaying {
			st.Status = playback.StatusPlaying
			// Re-anchor so interpolation resumes from the frozen
			// position instead of jumping over the paused gap.
			st.PositionAnchorAt = now
		}
		return st

	case opPause:
		if st.Status == playback.StatusPlaying {
			st.PositionAnchorMs = st.Interpolated(now)
			st.PositionAnchorAt = now
			st.Status = playback.StatusPaused
		}
		return st

	case opSkipTo:
		if a.index < 0 || a.index >= len(st.PlayOrder) {
			return e.stop(st, now)
		}
		return e.moveCursor(st, a.index, now)

	case opSkipBy, opAdvance:
		count := a.count
		if a.op == opAdvance {
			count = 1
		}
		target := st.Cursor + count
		n := len(st.PlayOrder)
		if target >= 0 && target < n {
			return e.moveCursor(st, target, now)
		}
		if !st.PlayMode.Has(playback.ModeRepeat) || n == 0 {
			return e.stop(st, now)
		}
		// Repeat wraps. Under shuffle the finished cycle's order is
		// discarded and a fresh permutation generated for the next one.
		if st.PlayMode.Has(playback.ModeShuffle) {
			st.PlayOrder = playback.ShuffleSuffix(playback.IdentityOrder(n), -1, e.rnd)
		}
		return e.moveCursor(st, ((target%n)+n)%n, now)

	case opReplace:
		st.Queue = append([]track.Track(nil), a.tracks...)
		st.PlayOrder = e.regenerateOrder(len(st.Queue), 0, st.PlayMode)
		if len(st.Queue) > 0 {
			st.Cursor = 0
		} else {
			st.Cursor = -1
		}
		st.Status = playback.StatusPlaying
		st.DurationMs = 0
		if t := st.CurrentTrack(); t != nil {
			st.DurationMs = t.DurationMs
		}
		return e.resetAnchors(st, now)

	case opAppend:
		first := len(st.Queue)
		st.Queue = append(append([]track.Track(nil), st.Queue...), a.tracks...)
		st.PlayOrder = playback.ExtendOrder(
			st.PlayOrder, st.Cursor, first, len(a.tracks),
			st.PlayMode.Has(playback.ModeShuffle), e.rnd,
		)
		return st

	case opInsert:
		insertAt := 0
		if t := st.Cursor; t >= 0 && t < len(st.PlayOrder) {
			insertAt = st.PlayOrder[t] + 1
		}
		queue := make([]track.Track, 0, len(st.Queue)+len(a.tracks))
		queue = append(queue, st.Queue[:insertAt]...)
		queue = append(queue, a.tracks...)
		queue = append(queue, st.Queue[insertAt:]...)
		st.Queue = queue
		st.PlayOrder = playback.SpliceOrder(
			st.PlayOrder, st.Cursor, insertAt, len(a.tracks),
			st.PlayMode.Has(playback.ModeShuffle), e.rnd,
		)
		return st

	case opPlaylist:
		st.Queue = append([]track.Track(nil), a.tracks...)
		cursor := a.index
		if cursor < 0 || cursor >= len(st.Queue) {
			cursor = 0
		}
		if len(st.Queue) == 0 {
			cursor = -1
		}
		st.PlayOrder = e.regenerateOrder(len(st.Queue), cursor, st.PlayMode)
		st.Cursor = cursor
		st.Status = playback.StatusPlaying
		st.DurationMs = 0
		if t := st.CurrentTrack(); t != nil {
			st.DurationMs = t.DurationMs
		}
		return e.resetAnchors(st, now)

	case opVolumeTo:
		st.VolumePercent = playback.ClampVolume(a.volume)
		return st

	case opVolumeBy:
		st.VolumePercent = playback.ClampVolume(st.VolumePercent + a.volume)
		return st

	case opShuffle:
		if !st.PlayMode.Has(playback.ModeShuffle) {
			// Enabling: the played prefix (cursor included) stays
			// fixed, only the upcoming entries are permuted.
			st.PlayOrder = playback.ShuffleSuffix(st.PlayOrder, st.Cursor, e.rnd)
		} else {
			st.PlayOrder, st.Cursor = playback.UnshuffleCursor(st.PlayOrder, st.Cursor)
		}
		st.PlayMode = st.PlayMode.Toggle(playback.ModeShuffle)
		return st

	case opRepeat:
		st.PlayMode = st.PlayMode.Toggle(playback.ModeRepeat)
		return st

	case opTime:
		st.PositionAnchorMs = a.positionMs
		st.PositionAnchorAt = now
		if a.durationMs > 0 {
			st.DurationMs = a.durationMs
		}
		return st
	}
	return st
}

func (e *Engine) stop(st playback.State, now time.Time) playback.State {
	st.Cursor = -1
	st.Status = playback.StatusPaused
	st.DurationMs = 0
	return e.resetAnchors(st, now)
}

func (e *Engine) moveCursor(st playback.State, cursor int, now time.Time) playback.State {
	st.Cursor = cursor
	st.Status = playback.StatusPlaying
	if t := st.CurrentTrack(); t != nil {
		st.DurationMs = t.DurationMs
	}
	return e.resetAnchors(st, now)
}

func (e *Engine) resetAnchors(st playback.State, now time.Time) playback.State {
	st.PositionAnchorMs = 0
	st.PositionAnchorAt = now
	st.CurrentTimeMs = 0
	return st
}

// regenerateOrder builds a fresh play order for a new queue: identity,
// with the not-yet-played suffix permuted when shuffle is on.
func (e *Engine) regenerateOrder(n, cursor int, mode playback.PlayMode) []int {
	order := playback.IdentityOrder(n)
	if mode.Has(playback.ModeShuffle) {
		order = playback.ShuffleSuffix(order, cursor, e.rnd)
	}
	return order
}

// persistLocked writes the serializable subset after a transition.
func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(persisted{
		Queue:         e.st.Queue,
		PlayOrder:     e.st.PlayOrder,
		Cursor:        e.st.Cursor,
		VolumePercent: e.st.VolumePercent,
		PlayMode:      e.st.PlayMode,
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("local: failed to encode persisted state")
		return
	}
	if err := e.store.Save(snapshotKey, data); err != nil {
		zlog.Warn().Err(err).Msg("local: failed to save persisted state")
	}
}

// syncRenderersLocked reconciles the two renderers with the state: the
// slot at cursor mod 2 carries the current track, the other one holds
// the next track preloaded for a gapless swap.
func (e *Engine) syncRenderersLocked(prev playback.State, structural bool) {
	st := e.st
	curSlot := currentSlot(st.Cursor)

	var curPath, nxtPath string
	if t := st.CurrentTrack(); t != nil {
		curPath = t.StreamPath()
	}
	if t := st.NextTrack(); t != nil {
		nxtPath = t.StreamPath()
	}

	for slot, r := range e.renderers {
		if r == nil {
			continue
		}
		want := nxtPath
		if slot == curSlot {
			want = curPath
		}
		if curSlot < 0 {
			want = ""
		}
		if r.Source() != want {
			r.Pause()
			r.Load(want)
		}
		r.SetVolume(st.VolumePercent)
	}

	if structural && prev.Cursor != st.Cursor {
		for _, r := range e.renderers {
			if r != nil {
				r.SetPositionMs(0)
			}
		}
	}

	if curSlot >= 0 {
		cur := e.renderers[curSlot]
		other := e.renderers[(curSlot+1)%2]
		if other != nil {
			other.Pause()
		}
		if cur != nil {
			if st.Status == playback.StatusPlaying {
				if err := cur.Play(); err != nil {
					zlog.Warn().Err(err).Msg("local: renderer play failed")
				}
			} else {
				cur.Pause()
			}
		}
	} else {
		for _, r := range e.renderers {
			if r != nil {
				r.Pause()
			}
		}
	}
}
