// Package tokendevice implements the adapter for the portable
// token-activated player. The device owns a nested state document;
// push updates arrive as deep deltas that are merged into a local
// mirror, and the playback view is rederived from the mirror.
package tokendevice

import (
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/osa030/cuebox/internal/app/merge"
	"github.com/osa030/cuebox/internal/domain/playlist"
	"github.com/osa030/cuebox/internal/domain/track"
)

// Tree is the device's nested state document as received off the wire.
type Tree map[string]any

// MergeDeltas folds a sequence of deep deltas into the tree, oldest
// first. The input tree is not mutated.
func MergeDeltas(tree Tree, deltas []any) Tree {
	cur := any(map[string]any(tree))
	for _, d := range deltas {
		cur = merge.Merge(cur, d)
	}
	if m, ok := cur.(map[string]any); ok {
		return Tree(m)
	}
	return tree
}

// View is the typed projection of the tree the adapter cares about.
// Fields default to zero values when the tree does not carry them yet.
type View struct {
	PlaylistID string
	TrackIndex int
	DurationMs int64
	PositionMs int64
	Playing    bool
	Volume     int
	Shuffle    bool
	Repeat     bool
	Playlists  map[string]playlist.Playlist
	Tracks     map[string]track.Track
}

// Project extracts the typed view from the raw tree. Unknown or
// missing branches read as empty rather than failing: the mirror is
// built up incrementally from deltas.
func Project(tree Tree) View {
	v := View{
		TrackIndex: -1,
		Playlists:  map[string]playlist.Playlist{},
		Tracks:     map[string]track.Track{},
	}
	if cfg := dig(tree, "audio", "config"); cfg != nil {
		v.Volume = asInt(cfg["volume"], 0)
		v.Shuffle = asBool(cfg["shuffle_mode"])
		v.Repeat = asBool(cfg["repeat_mode"])
	}
	if np := dig(tree, "audio", "nowPlaying"); np != nil {
		v.PlaylistID = asString(np["playlistId"])
		v.TrackIndex = asInt(np["trackIndex"], -1)
		v.DurationMs = asInt64(np["duration_ms"], 0)
	}
	if pb := dig(tree, "audio", "playback"); pb != nil {
		v.PositionMs = asInt64(pb["position_ms"], 0)
		v.Playing = asString(pb["state"]) == "PLAYING"
	}
	if pls := dig(tree, "db", "playlists"); pls != nil {
		for id, raw := range pls {
			v.Playlists[id] = decodePlaylist(id, raw)
		}
	}
	if trs := dig(tree, "db", "tracks"); trs != nil {
		for id, raw := range trs {
			v.Tracks[id] = decodeTrack(id, raw)
		}
	}
	return v
}

// Queue resolves the selected playlist's track-id list through the
// track table. An id without a track record still occupies its slot so
// indices keep lining up with the device's cursor.
func (v View) Queue() []track.Track {
	pl, ok := v.Playlists[v.PlaylistID]
	if !ok {
		return nil
	}
	out := make([]track.Track, 0, len(pl.TrackIDs))
	for _, id := range pl.TrackIDs {
		if t, ok := v.Tracks[id]; ok {
			out = append(out, t)
		} else {
			out = append(out, track.Track{ID: id})
		}
	}
	return out
}

// PlaylistNames returns the known playlists sorted by name for display.
func (v View) PlaylistNames() []playlist.Playlist {
	out := make([]playlist.Playlist, 0, len(v.Playlists))
	for _, pl := range v.Playlists {
		out = append(out, pl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func dig(tree Tree, path ...string) map[string]any {
	cur := map[string]any(tree)
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func decodePlaylist(id string, raw any) playlist.Playlist {
	pl := playlist.Playlist{ID: id}
	m, ok := raw.(map[string]any)
	if !ok {
		return pl
	}
	pl.Name = asString(m["name"])
	if ids, ok := m["tracks"].([]any); ok {
		pl.TrackIDs = make([]string, 0, len(ids))
		for _, v := range ids {
			pl.TrackIDs = append(pl.TrackIDs, asString(v))
		}
	}
	return pl
}

func decodeTrack(id string, raw any) track.Track {
	t := track.Track{ID: id}
	m, ok := raw.(map[string]any)
	if !ok {
		return t
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &t,
		WeaklyTypedInput: true,
	})
	if err == nil {
		_ = dec.Decode(m)
	}
	t.ID = id
	return t
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return def
}

func asInt64(v any, def int64) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return def
}
