package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/osa030/cuebox/internal/domain/track"
)

// Room-speaker endpoints. The speaker is server-authoritative: these
// calls resolve on acknowledgement and the push channel delivers the
// resulting state.

// SpeakerQueue is the speaker's full authoritative state.
type SpeakerQueue struct {
	State  string        `json:"state"`
	Tracks []track.Track `json:"tracks"`
	Index  int           `json:"index"`
	TimeMs int64         `json:"time"`
	// DurationMs mirrors the current track's duration; 0 if stopped.
	DurationMs int64 `json:"duration"`
	Volume     int   `json:"volume"`
}

// SpeakerGetQueue fetches the speaker's full state.
func (c *Client) SpeakerGetQueue(ctx context.Context) (*SpeakerQueue, error) {
	var out SpeakerQueue
	if err := c.do(ctx, http.MethodGet, "/api/speaker/queue", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpeakerPlay resumes playback.
func (c *Client) SpeakerPlay(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/speaker/play", nil, nil)
}

// SpeakerPause pauses playback.
func (c *Client) SpeakerPause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/speaker/pause", nil, nil)
}

// SpeakerSkipTo jumps to an absolute queue index.
func (c *Client) SpeakerSkipTo(ctx context.Context, index int) error {
	return c.do(ctx, http.MethodPost, "/api/speaker/skip", index, nil)
}

// SpeakerSkipBy moves by a relative number of tracks.
func (c *Client) SpeakerSkipBy(ctx context.Context, count int) error {
	return c.do(ctx, http.MethodPut, "/api/speaker/skip", count, nil)
}

// SpeakerSeekTo seeks to an absolute position in milliseconds.
func (c *Client) SpeakerSeekTo(ctx context.Context, ms int64) error {
	return c.do(ctx, http.MethodPost, "/api/speaker/seek", ms, nil)
}

// SpeakerSeekBy seeks by a relative number of milliseconds.
func (c *Client) SpeakerSeekBy(ctx context.Context, ms int64) error {
	return c.do(ctx, http.MethodPut, "/api/speaker/seek", ms, nil)
}

// SpeakerReplaceQueue replaces the queue with the given tracks.
func (c *Client) SpeakerReplaceQueue(ctx context.Context, tracks []track.Track) error {
	return c.do(ctx, http.MethodPost, "/api/speaker/queue", trackIDs(tracks), nil)
}

// SpeakerAppendToQueue appends tracks to the queue.
func (c *Client) SpeakerAppendToQueue(ctx context.Context, tracks []track.Track) error {
	return c.do(ctx, http.MethodPut, "/api/speaker/queue", trackIDs(tracks), nil)
}

// SpeakerInsertIntoQueue inserts tracks after the current one.
func (c *Client) SpeakerInsertIntoQueue(ctx context.Context, tracks []track.Track) error {
	return c.do(ctx, http.MethodPatch, "/api/speaker/queue", trackIDs(tracks), nil)
}

// SpeakerSetPlaylist replaces the queue with a library playlist.
func (c *Client) SpeakerSetPlaylist(ctx context.Context, id string, index int) error {
	path := fmt.Sprintf("/api/speaker/queue?playlist=%s&index=%d", id, index)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// SpeakerSetVolumeTo sets the absolute volume percentage.
func (c *Client) SpeakerSetVolumeTo(ctx context.Context, volume int) error {
	return c.do(ctx, http.MethodPost, "/api/speaker/volume", volume, nil)
}

// SpeakerChangeVolumeBy adjusts the volume by a delta.
func (c *Client) SpeakerChangeVolumeBy(ctx context.Context, delta int) error {
	return c.do(ctx, http.MethodPut, "/api/speaker/volume", delta, nil)
}

func trackIDs(tracks []track.Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
