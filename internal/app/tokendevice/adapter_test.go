package tokendevice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/app/transport"
	"github.com/osa030/cuebox/internal/domain/track"
	"github.com/osa030/cuebox/internal/infra/api"
)

// deviceTree is a representative state document: two playlists sharing
// a track table, with the first playlist active on track 1.
func deviceTree() map[string]any {
	return map[string]any{
		"audio": map[string]any{
			"config": map[string]any{
				"volume":       float64(45),
				"shuffle_mode": false,
				"repeat_mode":  true,
			},
			"nowPlaying": map[string]any{
				"playlistId":  "pl-1",
				"trackIndex":  float64(1),
				"duration_ms": float64(200_000),
			},
			"playback": map[string]any{
				"position_ms": float64(15_000),
				"state":       "PLAYING",
			},
		},
		"db": map[string]any{
			"playlists": map[string]any{
				"pl-1": map[string]any{
					"name":   "Morning",
					"tracks": []any{"t1", "t2", "t3"},
				},
				"pl-2": map[string]any{
					"name":   "Evening",
					"tracks": []any{"t3"},
				},
			},
			"tracks": map[string]any{
				"t1": map[string]any{"title": "One", "duration_ms": float64(180_000)},
				"t2": map[string]any{"title": "Two", "duration_ms": float64(200_000)},
				"t3": map[string]any{"title": "Three", "duration_ms": float64(160_000)},
			},
		},
	}
}

// fakeDeviceAPI records calls and serves a scripted tree.
type fakeDeviceAPI struct {
	mu       sync.Mutex
	tree     map[string]any
	err      error
	calls    []string
	playMode int
	puts     []api.DevicePlaylistPayload
}

func (f *fakeDeviceAPI) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeDeviceAPI) DeviceGetState(context.Context) (map[string]any, error) {
	if err := f.record("getState"); err != nil {
		return nil, err
	}
	return f.tree, nil
}

func (f *fakeDeviceAPI) DevicePlay(context.Context) error  { return f.record("play") }
func (f *fakeDeviceAPI) DevicePause(context.Context) error { return f.record("pause") }
func (f *fakeDeviceAPI) DeviceSkipTo(context.Context, int) error {
	return f.record("skipTo")
}
func (f *fakeDeviceAPI) DeviceSkipBy(context.Context, int) error {
	return f.record("skipBy")
}
func (f *fakeDeviceAPI) DeviceSeekTo(context.Context, int64) error {
	return f.record("seekTo")
}
func (f *fakeDeviceAPI) DeviceSeekBy(context.Context, int64) error {
	return f.record("seekBy")
}
func (f *fakeDeviceAPI) DeviceSetPlaylist(context.Context, string, int) error {
	return f.record("setPlaylist")
}
func (f *fakeDeviceAPI) DeviceSetVolumeTo(context.Context, int) error {
	return f.record("setVolumeTo")
}
func (f *fakeDeviceAPI) DeviceChangeVolumeBy(context.Context, int) error {
	return f.record("changeVolumeBy")
}

func (f *fakeDeviceAPI) DeviceSetPlayMode(_ context.Context, mode int) error {
	f.mu.Lock()
	f.playMode = mode
	f.mu.Unlock()
	return f.record("setPlayMode")
}

func (f *fakeDeviceAPI) DevicePutPlaylist(_ context.Context, p api.DevicePlaylistPayload) error {
	f.mu.Lock()
	f.puts = append(f.puts, p)
	f.mu.Unlock()
	return f.record("putPlaylist")
}

func (f *fakeDeviceAPI) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// fakePushChannel lets tests drive push messages and reconnect hooks.
type fakePushChannel struct {
	mu        sync.Mutex
	handlers  map[string][]func(transport.Message)
	reconnect []func()
}

func newFakePushChannel() *fakePushChannel {
	return &fakePushChannel{handlers: map[string][]func(transport.Message){}}
}

func (c *fakePushChannel) Subscribe(msgType string, fn func(transport.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = append(c.handlers[msgType], fn)
	return func() {}
}

func (c *fakePushChannel) SubscribeReconnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = append(c.reconnect, fn)
	return func() {}
}

func (c *fakePushChannel) push(msgType string, payload any) {
	c.mu.Lock()
	handlers := append([]func(transport.Message){}, c.handlers[msgType]...)
	c.mu.Unlock()
	msg := transport.Message{Type: msgType, Body: map[string]any{"type": msgType, "payload": payload}}
	for _, fn := range handlers {
		fn(msg)
	}
}

func (c *fakePushChannel) fireReconnect() {
	c.mu.Lock()
	hooks := append([]func(){}, c.reconnect...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeDeviceAPI, *fakePushChannel) {
	t.Helper()
	fa := &fakeDeviceAPI{tree: deviceTree()}
	ch := newFakePushChannel()
	a, err := New(Config{API: fa, Channel: ch, TickInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, fa, ch
}

func TestAdapter_InitialFetch(t *testing.T) {
	a, fa, _ := newTestAdapter(t)
	st := a.State()

	assert.Equal(t, playback.KindTokenDevice, st.Kind)
	assert.Equal(t, []string{"t1", "t2", "t3"}, queueIDs(st))
	assert.Equal(t, 1, st.Cursor)
	assert.Equal(t, "Two", st.CurrentTrack().Title)
	assert.Equal(t, playback.StatusPlaying, st.Status)
	assert.Equal(t, int64(200_000), st.DurationMs)
	assert.Equal(t, 45, st.VolumePercent)
	assert.False(t, st.PlayMode.Has(playback.ModeShuffle))
	assert.True(t, st.PlayMode.Has(playback.ModeRepeat))
	assert.Equal(t, 1, fa.callCount("getState"))
}

func TestAdapter_UnreachableDeviceStartsEmpty(t *testing.T) {
	fa := &fakeDeviceAPI{err: errors.New("device offline")}
	a, err := New(Config{API: fa, TickInterval: time.Hour})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	st := a.State()
	assert.Equal(t, -1, st.Cursor)
	assert.Empty(t, st.Queue)
}

func TestAdapter_DeepDeltaMergesIntoMirror(t *testing.T) {
	a, _, ch := newTestAdapter(t)

	// Volume-only delta: siblings of the touched branch survive.
	ch.push(PushType, map[string]any{
		"deltas": []any{
			map[string]any{
				"audio": map[string]any{
					"config": map[string]any{"volume": float64(80)},
				},
			},
		},
	})

	st := a.State()
	assert.Equal(t, 80, st.VolumePercent)
	assert.Equal(t, 1, st.Cursor)
	assert.Equal(t, playback.StatusPlaying, st.Status)
	assert.True(t, st.PlayMode.Has(playback.ModeRepeat))
}

func TestAdapter_DeltasAppliedInOrder(t *testing.T) {
	a, _, ch := newTestAdapter(t)

	ch.push(PushType, map[string]any{
		"deltas": []any{
			map[string]any{"audio": map[string]any{"config": map[string]any{"volume": float64(10)}}},
			map[string]any{"audio": map[string]any{"config": map[string]any{"volume": float64(60)}}},
		},
	})

	assert.Equal(t, 60, a.State().VolumePercent)
}

func TestAdapter_QueueRederivedFromPlaylistDelta(t *testing.T) {
	a, _, ch := newTestAdapter(t)

	// The device reordered the active playlist; the queue must follow.
	ch.push(PushType, map[string]any{
		"deltas": []any{
			map[string]any{
				"db": map[string]any{
					"playlists": map[string]any{
						"pl-1": map[string]any{
							"tracks": []any{"t3", "t1", "t2"},
						},
					},
				},
			},
		},
	})

	st := a.State()
	assert.Equal(t, []string{"t3", "t1", "t2"}, queueIDs(st))
	assert.Equal(t, "One", st.CurrentTrack().Title, "cursor index resolves against the new order")
}

func TestAdapter_SwitchActivePlaylist(t *testing.T) {
	a, _, ch := newTestAdapter(t)

	ch.push(PushType, map[string]any{
		"deltas": []any{
			map[string]any{
				"audio": map[string]any{
					"nowPlaying": map[string]any{
						"playlistId":  "pl-2",
						"trackIndex":  float64(0),
						"duration_ms": float64(160_000),
					},
					"playback": map[string]any{"position_ms": float64(0)},
				},
			},
		},
	})

	st := a.State()
	assert.Equal(t, []string{"t3"}, queueIDs(st))
	assert.Equal(t, 0, st.Cursor)
	assert.Equal(t, "Three", st.CurrentTrack().Title)
}

func TestAdapter_UnknownTrackIDKeepsSlot(t *testing.T) {
	a, _, ch := newTestAdapter(t)

	ch.push(PushType, map[string]any{
		"deltas": []any{
			map[string]any{
				"db": map[string]any{
					"playlists": map[string]any{
						"pl-1": map[string]any{"tracks": []any{"t1", "ghost", "t2"}},
					},
				},
			},
		},
	})

	st := a.State()
	assert.Equal(t, []string{"t1", "ghost", "t2"}, queueIDs(st))
	assert.Equal(t, "", st.Queue[1].Title)
}

func TestAdapter_MalformedPushDropped(t *testing.T) {
	a, _, ch := newTestAdapter(t)
	before := a.State()

	ch.push(PushType, "bogus")

	st := a.State()
	assert.Equal(t, before.Cursor, st.Cursor)
	assert.Equal(t, before.VolumePercent, st.VolumePercent)
}

func TestAdapter_QueueEditsRejected(t *testing.T) {
	a, fa, _ := newTestAdapter(t)
	before := a.State()
	tracks := []track.Track{{ID: "t9"}}

	assert.ErrorIs(t, a.ReplaceQueue(tracks), playback.ErrCommandRejected)
	assert.ErrorIs(t, a.AppendToQueue(tracks), playback.ErrCommandRejected)
	assert.ErrorIs(t, a.InsertAfterCursor(tracks), playback.ErrCommandRejected)

	// Rejection leaves state untouched and never reaches the device.
	st := a.State()
	assert.Equal(t, queueIDs(before), queueIDs(st))
	assert.Equal(t, before.Cursor, st.Cursor)
	fa.mu.Lock()
	assert.Len(t, fa.calls, 1, "only the construction fetch")
	fa.mu.Unlock()
}

func TestAdapter_CommandsForwarded(t *testing.T) {
	a, fa, _ := newTestAdapter(t)

	require.NoError(t, a.Play())
	require.NoError(t, a.Pause())
	require.NoError(t, a.SkipBy(1))
	require.NoError(t, a.SeekTo(30_000))
	require.NoError(t, a.SelectPlaylist("pl-2", 0))
	require.NoError(t, a.SetVolumeTo(55))

	for _, name := range []string{"play", "pause", "skipBy", "seekTo", "setPlaylist", "setVolumeTo"} {
		assert.Equal(t, 1, fa.callCount(name), name)
	}
}

func TestAdapter_CommandTransportFailure(t *testing.T) {
	a, fa, _ := newTestAdapter(t)
	fa.mu.Lock()
	fa.err = errors.New("device busy")
	fa.mu.Unlock()

	err := a.Play()
	require.Error(t, err)
	assert.ErrorIs(t, err, playback.ErrTransportUnavailable)
}

func TestAdapter_ToggleShuffleSendsPlayMode(t *testing.T) {
	a, fa, _ := newTestAdapter(t)

	// Current mode is repeat-only; toggling shuffle adds the bit.
	require.NoError(t, a.ToggleShuffle())
	fa.mu.Lock()
	assert.Equal(t, int(playback.ModeShuffle|playback.ModeRepeat), fa.playMode)
	fa.mu.Unlock()

	// Toggling repeat clears its bit.
	require.NoError(t, a.ToggleRepeat())
	fa.mu.Lock()
	assert.Equal(t, 0, fa.playMode)
	fa.mu.Unlock()

	// The local mode changes only when the device confirms.
	assert.True(t, a.State().PlayMode.Has(playback.ModeRepeat))
}

func TestAdapter_ReorderTracks(t *testing.T) {
	tests := []struct {
		name     string
		from     int
		to       int
		expected []string
	}{
		{name: "move forward", from: 0, to: 2, expected: []string{"t2", "t1", "t3"}},
		{name: "move to end", from: 0, to: 3, expected: []string{"t2", "t3", "t1"}},
		{name: "move backward", from: 2, to: 0, expected: []string{"t3", "t1", "t2"}},
		{name: "no-op move", from: 1, to: 1, expected: []string{"t1", "t2", "t3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fa, _ := newTestAdapter(t)
			require.NoError(t, a.ReorderTracks("pl-1", tt.from, tt.to))

			fa.mu.Lock()
			defer fa.mu.Unlock()
			require.Len(t, fa.puts, 1)
			assert.Equal(t, "pl-1", fa.puts[0].ID)
			assert.Equal(t, "Morning", fa.puts[0].Name)
			assert.Equal(t, tt.expected, fa.puts[0].TrackIDs)
		})
	}
}

func TestAdapter_ReorderOutOfRange(t *testing.T) {
	a, fa, _ := newTestAdapter(t)

	assert.ErrorIs(t, a.ReorderTracks("pl-1", 5, 0), playback.ErrCommandRejected)
	assert.ErrorIs(t, a.ReorderTracks("pl-1", 0, -1), playback.ErrCommandRejected)
	assert.ErrorIs(t, a.ReorderTracks("missing", 0, 1), playback.ErrCommandRejected)
	assert.Equal(t, 0, fa.callCount("putPlaylist"))
}

func TestAdapter_DeleteTracks(t *testing.T) {
	a, fa, _ := newTestAdapter(t)
	require.NoError(t, a.DeleteTracks("pl-1", []int{0, 2}))

	fa.mu.Lock()
	defer fa.mu.Unlock()
	require.Len(t, fa.puts, 1)
	assert.Equal(t, []string{"t2"}, fa.puts[0].TrackIDs)
}

func TestAdapter_AddToPlaylist(t *testing.T) {
	a, fa, _ := newTestAdapter(t)
	require.NoError(t, a.AddToPlaylist("pl-2", []string{"t1", "t2"}))

	fa.mu.Lock()
	defer fa.mu.Unlock()
	require.Len(t, fa.puts, 1)
	assert.Equal(t, "pl-2", fa.puts[0].ID)
	assert.Equal(t, []string{"t3", "t1", "t2"}, fa.puts[0].TrackIDs)
}

func TestAdapter_AddToPlaylistSkipsDuplicates(t *testing.T) {
	a, fa, _ := newTestAdapter(t)
	require.NoError(t, a.AddToPlaylist("pl-2", []string{"t3", "t1"}))

	fa.mu.Lock()
	defer fa.mu.Unlock()
	require.Len(t, fa.puts, 1)
	assert.Equal(t, []string{"t3", "t1"}, fa.puts[0].TrackIDs)
}

func TestAdapter_PlaylistsSortedByName(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	pls := a.Playlists()
	require.Len(t, pls, 2)
	assert.Equal(t, "Evening", pls[0].Name)
	assert.Equal(t, "pl-2", pls[0].ID)
	assert.Equal(t, "Morning", pls[1].Name)
	assert.Equal(t, "pl-1", pls[1].ID)
}

func TestAdapter_ReconnectRefetches(t *testing.T) {
	a, fa, ch := newTestAdapter(t)
	require.Equal(t, 1, fa.callCount("getState"))

	fa.mu.Lock()
	tree := deviceTree()
	tree["audio"].(map[string]any)["playback"].(map[string]any)["state"] = "PAUSED"
	fa.tree = tree
	fa.mu.Unlock()

	ch.fireReconnect()

	assert.Equal(t, 2, fa.callCount("getState"))
	assert.Equal(t, playback.StatusPaused, a.State().Status)
}

func queueIDs(st playback.State) []string {
	out := make([]string, 0, len(st.Queue))
	for _, tr := range st.Queue {
		out = append(out, tr.ID)
	}
	return out
}
