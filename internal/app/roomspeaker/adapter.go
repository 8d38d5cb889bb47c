// Package roomspeaker implements the server-authoritative multi-room
// speaker adapter. Commands are forwarded over the network and resolve
// on acknowledgement; the visible state changes only through the
// initial fetch and push updates. No optimistic prediction is
// attempted.
package roomspeaker

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/app/transport"
	"github.com/osa030/cuebox/internal/domain/track"
	"github.com/osa030/cuebox/internal/infra/api"
)

// PushType is the envelope type this adapter subscribes to.
const PushType = "roomSpeaker"

// API is the slice of the server client the adapter uses.
type API interface {
	SpeakerGetQueue(ctx context.Context) (*api.SpeakerQueue, error)
	SpeakerPlay(ctx context.Context) error
	SpeakerPause(ctx context.Context) error
	SpeakerSkipTo(ctx context.Context, index int) error
	SpeakerSkipBy(ctx context.Context, count int) error
	SpeakerSeekTo(ctx context.Context, ms int64) error
	SpeakerSeekBy(ctx context.Context, ms int64) error
	SpeakerReplaceQueue(ctx context.Context, tracks []track.Track) error
	SpeakerAppendToQueue(ctx context.Context, tracks []track.Track) error
	SpeakerInsertIntoQueue(ctx context.Context, tracks []track.Track) error
	SpeakerSetPlaylist(ctx context.Context, id string, index int) error
	SpeakerSetVolumeTo(ctx context.Context, volume int) error
	SpeakerChangeVolumeBy(ctx context.Context, delta int) error
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

// Adapter is the room-speaker backend.
type Adapter struct {
	mu sync.Mutex
	st playback.State

	api      API
	notifier *playback.Notifier
	ticker   *playback.Ticker
	now      func() time.Time
	unsubs   []func()
}

// New constructs the adapter and fetches initial authoritative state.
// An unreachable speaker is not fatal: the adapter starts empty and
// resynchronizes when the push channel reconnects.
func New(cfg Config) (*Adapter, error) {
	if cfg.API == nil {
		return nil, errors.New("speaker API is required")
	}
	a := &Adapter{
		api:      cfg.API,
		notifier: playback.NewNotifier(),
		ticker:   playback.NewTicker(cfg.TickInterval),
		now:      cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.st = playback.State{
		Kind:   playback.KindRoomSpeaker,
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

// refresh replaces the adapter state with a full authoritative fetch.
// Used at construction and after a reconnect gap, since pushes missed
// during an outage are not redelivered.
func (a *Adapter) refresh() {
	q, err := a.api.SpeakerGetQueue(context.Background())
	if err != nil {
		zlog.Warn().Err(err).Msg("roomspeaker: full state fetch failed")
		return
	}
	a.mu.Lock()
	a.st = playback.State{
		Kind:             playback.KindRoomSpeaker,
		Queue:            q.Tracks,
		PlayOrder:        playback.IdentityOrder(len(q.Tracks)),
		Cursor:           boundCursor(q.Index, len(q.Tracks)),
		Status:           playback.ParseStatus(q.State),
		PositionAnchorMs: q.TimeMs,
		PositionAnchorAt: a.now(),
		CurrentTimeMs:    q.TimeMs,
		DurationMs:       q.DurationMs,
		VolumePercent:    playback.ClampVolume(q.Volume),
	}
	if a.st.DurationMs == 0 {
		if t := a.st.CurrentTrack(); t != nil {
			a.st.DurationMs = t.DurationMs
		}
	}
	snap := a.st.Clone()
	a.mu.Unlock()
	a.notifier.Publish(snap)
}

func boundCursor(idx, n int) int {
	if idx < 0 || idx >= n {
		return -1
	}
	return idx
}

// handlePush applies one push update. A malformed payload is dropped
// with a diagnostic; prior state is retained.
func (a *Adapter) handlePush(msg transport.Message) {
	d, err := DecodeDelta(msg.Body["payload"])
	if err != nil {
		zlog.Warn().Err(err).Msg("roomspeaker: dropping malformed delta")
		return
	}
	a.mu.Lock()
	a.apply(d)
	snap := a.st.Clone()
	a.mu.Unlock()
	a.notifier.Publish(snap)
}

// apply mirrors the speaker's update variants. Each field is applied
// independently; a cursor change re-anchors the position clock.
func (a *Adapter) apply(d *Delta) {
	now := a.now()
	switch {
	case d.Queue != nil:
		if d.Queue.Tracks != nil {
			a.st.Queue = d.Queue.Tracks
			a.st.PlayOrder = playback.IdentityOrder(len(d.Queue.Tracks))
		}
		if d.Queue.Index != nil {
			a.st.Cursor = boundCursor(*d.Queue.Index, len(a.st.Queue))
			if t := a.st.CurrentTrack(); t != nil {
				a.st.DurationMs = t.DurationMs
			}
			var ms int64
			if d.Queue.TimeMs != nil {
				ms = *d.Queue.TimeMs
			}
			a.anchor(ms, now)
		}
		if d.State != nil {
			a.st.Status = playback.ParseStatus(*d.State)
		}

	case d.QueuePosition != nil:
		if *d.QueuePosition != a.st.Cursor {
			a.st.Cursor = boundCursor(*d.QueuePosition, len(a.st.Queue))
			if d.CurrentTrack != nil {
				a.st.DurationMs = d.CurrentTrack.DurationMs
			} else if t := a.st.CurrentTrack(); t != nil {
				a.st.DurationMs = t.DurationMs
			}
			a.anchor(0, now)
		}
		if d.State != nil {
			a.st.Status = playback.ParseStatus(*d.State)
		}

	case d.Tracks != nil:
		a.st.Queue = d.Tracks
		a.st.PlayOrder = playback.IdentityOrder(len(d.Tracks))
		if d.Index != nil {
			a.st.Cursor = boundCursor(*d.Index, len(a.st.Queue))
			if t := a.st.CurrentTrack(); t != nil {
				a.st.DurationMs = t.DurationMs
			}
			var ms int64
			if d.TimeMs != nil {
				ms = *d.TimeMs
			}
			a.anchor(ms, now)
		}

	case d.Volume != nil:
		a.st.VolumePercent = playback.ClampVolume(*d.Volume)
	}
}

func (a *Adapter) anchor(ms int64, now time.Time) {
	a.st.PositionAnchorMs = ms
	a.st.PositionAnchorAt = now
	a.st.CurrentTimeMs = ms
}

// Kind implements playback.Backend.
func (a *Adapter) Kind() playback.Kind { return playback.KindRoomSpeaker }

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
	return a.forward(a.api.SpeakerPlay(context.Background()))
}

func (a *Adapter) Pause() error {
	return a.forward(a.api.SpeakerPause(context.Background()))
}

func (a *Adapter) SkipTo(index int) error {
	return a.forward(a.api.SpeakerSkipTo(context.Background(), index))
}

func (a *Adapter) SkipBy(count int) error {
	return a.forward(a.api.SpeakerSkipBy(context.Background(), count))
}

func (a *Adapter) SeekTo(absoluteMs int64) error {
	return a.forward(a.api.SpeakerSeekTo(context.Background(), absoluteMs))
}

func (a *Adapter) SeekBy(deltaMs int64) error {
	return a.forward(a.api.SpeakerSeekBy(context.Background(), deltaMs))
}

func (a *Adapter) ReplaceQueue(tracks []track.Track) error {
	return a.forward(a.api.SpeakerReplaceQueue(context.Background(), tracks))
}

func (a *Adapter) AppendToQueue(tracks []track.Track) error {
	return a.forward(a.api.SpeakerAppendToQueue(context.Background(), tracks))
}

func (a *Adapter) InsertAfterCursor(tracks []track.Track) error {
	return a.forward(a.api.SpeakerInsertIntoQueue(context.Background(), tracks))
}

func (a *Adapter) SelectPlaylist(id string, startIndex int) error {
	return a.forward(a.api.SpeakerSetPlaylist(context.Background(), id, startIndex))
}

func (a *Adapter) SetVolumeTo(percent int) error {
	return a.forward(a.api.SpeakerSetVolumeTo(context.Background(), playback.ClampVolume(percent)))
}

func (a *Adapter) ChangeVolumeBy(delta int) error {
	return a.forward(a.api.SpeakerChangeVolumeBy(context.Background(), delta))
}

// ToggleShuffle is not supported by the speaker transport.
func (a *Adapter) ToggleShuffle() error {
	return errors.Mark(errors.New("room speaker has no shuffle control"), playback.ErrCommandRejected)
}

// ToggleRepeat is not supported by the speaker transport.
func (a *Adapter) ToggleRepeat() error {
	return errors.Mark(errors.New("room speaker has no repeat control"), playback.ErrCommandRejected)
}
