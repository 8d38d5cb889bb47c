package local

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/domain/track"
)

// snapshotKey is the fixed key the persisted engine state lives under.
const snapshotKey = "localPlayerState"

// Library is the collaborator the engine loads playlists from.
type Library interface {
	LoadPlaylist(ctx context.Context, id string) ([]track.Track, error)
}

// SnapshotStore persists the engine's serializable state across runs.
type SnapshotStore interface {
	Save(key string, value []byte) error
	Load(key string) (value []byte, ok bool, err error)
}

// RendererFactory builds the renderer for one slot, delivering its
// events to sink.
type RendererFactory func(slot int, sink func(RendererEvent)) (Renderer, error)

// Config configures the engine.
type Config struct {
	NewRenderer   RendererFactory
	Store         SnapshotStore
	Library       Library
	TickInterval  time.Duration
	DefaultVolume int
	// Rand drives shuffle permutations; nil uses a time-seeded source.
	Rand *rand.Rand
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is the client-authoritative local backend. All transitions run
// through a single tagged-command reducer; the two renderers are an
// output device synchronized to the state, never a source of truth
// except for position time updates.
type Engine struct {
	mu        sync.Mutex
	st        playback.State
	renderers [2]Renderer

	notifier *playback.Notifier
	ticker   *playback.Ticker
	store    SnapshotStore
	library  Library
	rnd      *rand.Rand
	now      func() time.Time
}

// persisted is the serializable subset of state, stored under
// snapshotKey. Absence means cold start.
type persisted struct {
	Queue         []track.Track     `json:"queue"`
	PlayOrder     []int             `json:"playOrder"`
	Cursor        int               `json:"cursor"`
	VolumePercent int               `json:"volume"`
	PlayMode      playback.PlayMode `json:"playMode"`
}

// NewEngine constructs the engine, rehydrating any persisted snapshot
// before the first command is processed.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.NewRenderer == nil {
		return nil, errors.New("renderer factory is required")
	}
	e := &Engine{
		notifier: playback.NewNotifier(),
		ticker:   playback.NewTicker(cfg.TickInterval),
		store:    cfg.Store,
		library:  cfg.Library,
		rnd:      cfg.Rand,
		now:      cfg.Now,
	}
	if e.rnd == nil {
		e.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.st = playback.State{
		Kind:          playback.KindLocal,
		Cursor:        -1,
		Status:        playback.StatusPaused,
		VolumePercent: playback.ClampVolume(cfg.DefaultVolume),
	}
	e.rehydrate()

	for slot := 0; slot < 2; slot++ {
		r, err := cfg.NewRenderer(slot, e.handleRendererEvent)
		if err != nil {
			for _, prev := range e.renderers {
				if prev != nil {
					_ = prev.Close()
				}
			}
			return nil, errors.Wrapf(err, "failed to create renderer %d", slot)
		}
		e.renderers[slot] = r
	}

	e.mu.Lock()
	e.syncRenderersLocked(e.st, true)
	e.mu.Unlock()

	e.ticker.Run(e.State, e.notifier.Publish)
	return e, nil
}

func (e *Engine) rehydrate() {
	if e.store == nil {
		return
	}
	data, ok, err := e.store.Load(snapshotKey)
	if err != nil {
		zlog.Warn().Err(err).Msg("local: failed to load persisted state")
		return
	}
	if !ok {
		return
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		zlog.Warn().Err(err).Msg("local: dropping unreadable persisted state")
		return
	}
	e.st.Queue = p.Queue
	if isPermutation(p.PlayOrder, len(p.Queue)) {
		e.st.PlayOrder = p.PlayOrder
	} else {
		e.st.PlayOrder = playback.IdentityOrder(len(p.Queue))
	}
	e.st.Cursor = p.Cursor
	if e.st.Cursor < -1 || e.st.Cursor >= len(e.st.PlayOrder) {
		e.st.Cursor = -1
	}
	e.st.VolumePercent = playback.ClampVolume(p.VolumePercent)
	e.st.PlayMode = p.PlayMode
	if t := e.st.CurrentTrack(); t != nil {
		e.st.DurationMs = t.DurationMs
	}
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

// Kind implements playback.Backend.
func (e *Engine) Kind() playback.Kind { return playback.KindLocal }

// State implements playback.Backend.
func (e *Engine) State() playback.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.st.Clone()
	snap.CurrentTimeMs = snap.Interpolated(e.now())
	return snap
}

// Subscribe implements playback.Backend.
func (e *Engine) Subscribe(fn func(playback.State)) func() {
	return e.notifier.Subscribe(fn)
}

// Close stops the tick clock and releases both renderers.
func (e *Engine) Close() error {
	e.ticker.Stop()
	var firstErr error
	for _, r := range e.renderers {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Commands. Each dispatches exactly one reducer action; calling a
// command twice performs two logical steps.

func (e *Engine) Play() error  { e.dispatch(action{op: opPlay}); return nil }
func (e *Engine) Pause() error { e.dispatch(action{op: opPause}); return nil }

func (e *Engine) SkipTo(index int) error {
	e.dispatch(action{op: opSkipTo, index: index})
	return nil
}

func (e *Engine) SkipBy(count int) error {
	e.dispatch(action{op: opSkipBy, count: count})
	return nil
}

// SeekTo drives the live renderer directly: backward out of range
// clamps to zero, forward past the end advances to the next track.
func (e *Engine) SeekTo(absoluteMs int64) error {
	return e.seek(func(Renderer) int64 { return absoluteMs })
}

// SeekBy seeks relative to the renderer's current position.
func (e *Engine) SeekBy(deltaMs int64) error {
	return e.seek(func(r Renderer) int64 { return r.PositionMs() + deltaMs })
}

func (e *Engine) seek(target func(Renderer) int64) error {
	e.mu.Lock()
	r := e.currentRendererLocked()
	if r == nil {
		e.mu.Unlock()
		return nil
	}
	ms := target(r)
	dur := r.DurationMs()
	if dur <= 0 {
		dur = e.st.DurationMs
	}
	e.mu.Unlock()

	if ms < 0 {
		ms = 0
	} else if dur > 0 && ms >= dur {
		return e.SkipBy(1)
	}
	e.mu.Lock()
	r.SetPositionMs(ms)
	e.mu.Unlock()
	e.dispatch(action{op: opTime, positionMs: ms, durationMs: dur})
	return nil
}

func (e *Engine) ReplaceQueue(tracks []track.Track) error {
	e.dispatch(action{op: opReplace, tracks: tracks})
	return nil
}

func (e *Engine) AppendToQueue(tracks []track.Track) error {
	e.dispatch(action{op: opAppend, tracks: tracks})
	return nil
}

func (e *Engine) InsertAfterCursor(tracks []track.Track) error {
	e.dispatch(action{op: opInsert, tracks: tracks})
	return nil
}

func (e *Engine) SelectPlaylist(id string, startIndex int) error {
	if e.library == nil {
		return errors.Mark(errors.New("no library configured"), playback.ErrCommandRejected)
	}
	tracks, err := e.library.LoadPlaylist(context.Background(), id)
	if err != nil {
		return errors.Mark(err, playback.ErrTransportUnavailable)
	}
	e.dispatch(action{op: opPlaylist, tracks: tracks, index: startIndex})
	return nil
}

func (e *Engine) SetVolumeTo(percent int) error {
	e.dispatch(action{op: opVolumeTo, volume: percent})
	return nil
}

func (e *Engine) ChangeVolumeBy(delta int) error {
	e.dispatch(action{op: opVolumeBy, volume: delta})
	return nil
}

func (e *Engine) ToggleShuffle() error { e.dispatch(action{op: opShuffle}); return nil }
func (e *Engine) ToggleRepeat() error  { e.dispatch(action{op: opRepeat}); return nil }

// handleRendererEvent feeds renderer callbacks into the reducer. Time
// updates from the live renderer are the only authoritative writer of
// the position anchor.
func (e *Engine) handleRendererEvent(ev RendererEvent) {
	e.mu.Lock()
	st := e.st
	curSlot := currentSlot(st.Cursor)
	nxt := e.renderers[(st.Cursor+1)%2]
	e.mu.Unlock()

	switch ev.Type {
	case RendererCanPlay:
		if st.Status == playback.StatusPlaying && ev.Slot == curSlot {
			e.mu.Lock()
			r := e.renderers[ev.Slot]
			e.mu.Unlock()
			if err := r.Play(); err != nil {
				zlog.Warn().Err(err).Int("slot", ev.Slot).Msg("local: renderer play failed")
			}
		}
	case RendererTimeUpdate:
		if ev.Slot == curSlot {
			e.dispatch(action{op: opTime, positionMs: ev.PositionMs, durationMs: ev.DurationMs})
		}
	case RendererEnded:
		// A track that drains out while paused stays where it is; the
		// boundary only advances the cursor during live playback.
		if ev.Slot != curSlot || st.Status != playback.StatusPlaying {
			return
		}
		if nxt != nil && nxt.Source() != "" {
			// Gapless handoff: the other renderer is already buffered.
			if err := nxt.Play(); err != nil {
				zlog.Warn().Err(err).Msg("local: gapless handoff failed")
			}
		}
		e.dispatch(action{op: opAdvance})
	}
}

func currentSlot(cursor int) int {
	if cursor < 0 {
		return -1
	}
	return cursor % 2
}

func (e *Engine) currentRendererLocked() Renderer {
	slot := currentSlot(e.st.Cursor)
	if slot < 0 {
		return nil
	}
	return e.renderers[slot]
}
