package tokendevice

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/app/transport"
	"github.com/osa030/cuebox/internal/infra/api"

	"github.com/osa030/cuebox/internal/domain/playlist"
	"github.com/osa030/cuebox/internal/domain/track"
)

// PushType is the envelope type this adapter subscribes to.
const PushType = "tokenDevice"

// API is the slice of the server client the adapter uses.
type API interface {
	DeviceGetState(ctx context.Context) (map[string]any, error)
	DevicePlay(ctx context.Context) error
	DevicePause(ctx context.Context) error
	DeviceSkipTo(ctx context.Context, index int) error
	DeviceSkipBy(ctx context.Context, count int) error
	DeviceSeekTo(ctx context.Context, ms int64) error
	DeviceSeekBy(ctx context.Context, ms int64) error
	DeviceSetPlaylist(ctx context.Context, id string, index int) error
	DeviceSetVolumeTo(ctx context.Context, volume int) error
	DeviceChangeVolumeBy(ctx context.Context, delta int) error
	DeviceSetPlayMode(ctx context.Context, mode int) error
	DevicePutPlaylist(ctx context.Context, p api.DevicePlaylistPayload) error
}

// PushChannel is the transport surface the adapter subscribes on.
type PushChannel interface {
	Subscribe(msgType string, fn func(transport.Message)) func()
	SubscribeReconnect(fn func()) func()
}

// Config configures the adapter.
type Config struct {
	API          API
	Channel      PushChannel
	TickInterval time.Duration
	Now          func() time.Time
}

// Adapter is the token-device backend. It mirrors the device's state
// document and rederives the queue from the selected playlist, so it
// never holds queue state the device does not also hold.
type Adapter struct {
	mu   sync.Mutex
	tree Tree
	st   playback.State

	api      API
	notifier *playback.Notifier
	ticker   *playback.Ticker
	now      func() time.Time
	unsubs   []func()
}

// New constructs the adapter and fetches the device's state document.
// An unreachable device is not fatal; the mirror fills in from pushes
// and the reconnect refetch.
func New(cfg Config) (*Adapter, error) {
	if cfg.API == nil {
		return nil, errors.New("device API is required")
	}
	a := &Adapter{
		tree:     Tree{},
		api:      cfg.API,
		notifier: playback.NewNotifier(),
		ticker:   playback.NewTicker(cfg.TickInterval),
		now:      cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.st = playback.State{
		Kind:   playback.KindTokenDevice,
		Cursor: -1,
		Status: playback.StatusPaused,
	}
	a.refresh()
	if cfg.Channel != nil {
		a.unsubs = append(a.unsubs,
			cfg.Channel.Subscribe(PushType, a.handlePush),
			cfg.Channel.SubscribeReconnect(a.refresh),
		)
	}
	a.ticker.Run(a.State, a.notifier.Publish)
	return a, nil
}

// refresh replaces the mirror with a full fetch. Pushes missed during
// an outage are not redelivered, so reconnection always refetches.
func (a *Adapter) refresh() {
	tree, err := a.api.DeviceGetState(context.Background())
	if err != nil {
		zlog.Warn().Err(err).Msg("tokendevice: full state fetch failed")
		return
	}
	a.mu.Lock()
	a.tree = Tree(tree)
	a.rebuildLocked()
	snap := a.st.Clone()
	a.mu.Unlock()
	a.notifier.Publish(snap)
}

// handlePush merges one push update into the mirror. The payload
// carries a "deltas" array applied oldest first; a payload without one
// is treated as a single delta.
func (a *Adapter) handlePush(msg transport.Message) {
	payload, ok := msg.Body["payload"].(map[string]any)
	if !ok {
		zlog.Warn().Msg("tokendevice: dropping malformed delta")
		return
	}
	deltas, ok := payload["deltas"].([]any)
	if !ok {
		deltas = []any{payload}
	}
	a.mu.Lock()
	a.tree = MergeDeltas(a.tree, deltas)
	a.rebuildLocked()
	snap := a.st.Clone()
	a.mu.Unlock()
	a.notifier.Publish(snap)
}

// rebuildLocked rederives the playback snapshot from the mirror. The
// device reports its own position; every rebuild re-anchors from it.
func (a *Adapter) rebuildLocked() {
	v := Project(a.tree)
	queue := v.Queue()

	cursor := v.TrackIndex
	if cursor < 0 || cursor >= len(queue) {
		cursor = -1
	}
	status := playback.StatusPaused
	if v.Playing {
		status = playback.StatusPlaying
	}
	var mode playback.PlayMode
	if v.Shuffle {
		mode |= playback.ModeShuffle
	}
	if v.Repeat {
		mode |= playback.ModeRepeat
	}
	duration := v.DurationMs
	if duration == 0 && cursor >= 0 {
		duration = queue[cursor].DurationMs
	}

	a.st = playback.State{
		Kind:             playback.KindTokenDevice,
		Queue:            queue,
		PlayOrder:        playback.IdentityOrder(len(queue)),
		Cursor:           cursor,
		Status:           status,
		PositionAnchorMs: v.PositionMs,
		PositionAnchorAt: a.now(),
		CurrentTimeMs:    v.PositionMs,
		DurationMs:       duration,
		VolumePercent:    playback.ClampVolume(v.Volume),
		PlayMode:         mode,
	}
}

// Kind implements playback.Backend.
func (a *Adapter) Kind() playback.Kind { return playback.KindTokenDevice }

// State implements playback.Backend.
func (a *Adapter) State() playback.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.st.Clone()
	snap.CurrentTimeMs = snap.Interpolated(a.now())
	return snap
}

// Subscribe implements playback.Backend.
func (a *Adapter) Subscribe(fn func(playback.State)) func() {
	return a.notifier.Subscribe(fn)
}

// Close implements playback.Backend.
func (a *Adapter) Close() error {
	a.ticker.Stop()
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	return nil
}

func (a *Adapter) forward(err error) error {
	if err != nil {
		return errors.Mark(err, playback.ErrTransportUnavailable)
	}
	return nil
}

func (a *Adapter) Play() error {
	return a.forward(a.api.DevicePlay(context.Background()))
}

func (a *Adapter) Pause() error {
	return a.forward(a.api.DevicePause(context.Background()))
}

func (a *Adapter) SkipTo(index int) error {
	return a.forward(a.api.DeviceSkipTo(context.Background(), index))
}

func (a *Adapter) SkipBy(count int) error {
	return a.forward(a.api.DeviceSkipBy(context.Background(), count))
}

func (a *Adapter) SeekTo(absoluteMs int64) error {
	return a.forward(a.api.DeviceSeekTo(context.Background(), absoluteMs))
}

func (a *Adapter) SeekBy(deltaMs int64) error {
	return a.forward(a.api.DeviceSeekBy(context.Background(), deltaMs))
}

// ReplaceQueue is not available: the device only plays its own stored
// playlists. The call fails fast and state is untouched.
func (a *Adapter) ReplaceQueue([]track.Track) error {
	return a.rejectQueueEdit()
}

// AppendToQueue is not available on this device.
func (a *Adapter) AppendToQueue([]track.Track) error {
	return a.rejectQueueEdit()
}

// InsertAfterCursor is not available on this device.
func (a *Adapter) InsertAfterCursor([]track.Track) error {
	return a.rejectQueueEdit()
}

func (a *Adapter) rejectQueueEdit() error {
	return errors.Mark(
		errors.New("direct queue manipulation is not available on this device"),
		playback.ErrCommandRejected,
	)
}

func (a *Adapter) SelectPlaylist(id string, startIndex int) error {
	return a.forward(a.api.DeviceSetPlaylist(context.Background(), id, startIndex))
}

func (a *Adapter) SetVolumeTo(percent int) error {
	return a.forward(a.api.DeviceSetVolumeTo(context.Background(), playback.ClampVolume(percent)))
}

func (a *Adapter) ChangeVolumeBy(delta int) error {
	return a.forward(a.api.DeviceChangeVolumeBy(context.Background(), delta))
}

// ToggleShuffle flips the shuffle bit on the device. The visible mode
// changes when the device confirms through a push delta.
func (a *Adapter) ToggleShuffle() error {
	return a.setPlayMode(playback.ModeShuffle)
}

// ToggleRepeat flips the repeat bit on the device.
func (a *Adapter) ToggleRepeat() error {
	return a.setPlayMode(playback.ModeRepeat)
}

func (a *Adapter) setPlayMode(bit playback.PlayMode) error {
	a.mu.Lock()
	mode := a.st.PlayMode.Toggle(bit)
	a.mu.Unlock()
	return a.forward(a.api.DeviceSetPlayMode(context.Background(), int(mode)))
}

// ReorderTracks moves the track at from to position to within a stored
// playlist. The device has no partial edit verbs, so the whole target
// track-id list is computed here and submitted as a replacement.
func (a *Adapter) ReorderTracks(playlistID string, from, to int) error {
	pl, err := a.playlistSnapshot(playlistID)
	if err != nil {
		return err
	}
	n := len(pl.TrackIDs)
	if from < 0 || from >= n || to < 0 || to > n {
		return errors.Mark(errors.Newf("reorder out of range: %d -> %d of %d", from, to, n), playback.ErrCommandRejected)
	}
	ids := append([]string(nil), pl.TrackIDs...)
	moved := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	if to > from {
		to--
	}
	ids = append(ids[:to], append([]string{moved}, ids[to:]...)...)
	return a.putPlaylist(playlistID, pl.Name, ids)
}

// DeleteTracks removes the tracks at the given indices from a stored
// playlist.
func (a *Adapter) DeleteTracks(playlistID string, indices []int) error {
	pl, err := a.playlistSnapshot(playlistID)
	if err != nil {
		return err
	}
	drop := map[int]bool{}
	for _, i := range indices {
		if i < 0 || i >= len(pl.TrackIDs) {
			return errors.Mark(errors.Newf("delete index out of range: %d of %d", i, len(pl.TrackIDs)), playback.ErrCommandRejected)
		}
		drop[i] = true
	}
	ids := make([]string, 0, len(pl.TrackIDs))
	for i, id := range pl.TrackIDs {
		if !drop[i] {
			ids = append(ids, id)
		}
	}
	return a.putPlaylist(playlistID, pl.Name, ids)
}

// AddToPlaylist appends tracks to a stored playlist. Ids already in the
// playlist are skipped; the device keeps playlist membership unique.
func (a *Adapter) AddToPlaylist(playlistID string, trackIDs []string) error {
	pl, err := a.playlistSnapshot(playlistID)
	if err != nil {
		return err
	}
	ids := append([]string(nil), pl.TrackIDs...)
	for _, id := range trackIDs {
		if !pl.Contains(id) {
			ids = append(ids, id)
		}
	}
	return a.putPlaylist(playlistID, pl.Name, ids)
}

// Playlists lists the device's stored playlists from the mirror, sorted
// by name for display.
func (a *Adapter) Playlists() []playlist.Playlist {
	a.mu.Lock()
	v := Project(a.tree)
	a.mu.Unlock()
	return v.PlaylistNames()
}

func (a *Adapter) playlistSnapshot(id string) (playlist.Playlist, error) {
	a.mu.Lock()
	v := Project(a.tree)
	a.mu.Unlock()
	pl, ok := v.Playlists[id]
	if !ok {
		return playlist.Playlist{}, errors.Mark(errors.Newf("unknown playlist %q", id), playback.ErrCommandRejected)
	}
	return pl, nil
}

func (a *Adapter) putPlaylist(id, name string, trackIDs []string) error {
	return a.forward(a.api.DevicePutPlaylist(context.Background(), api.DevicePlaylistPayload{
		ID:       id,
		Name:     name,
		TrackIDs: trackIDs,
	}))
}
