package api

import (
	"context"
	"fmt"
	"net/http"
)

// Token-device endpoints. The device owns a nested database-like state
// tree; commands go through these calls and the device answers with
// deep deltas on the push channel. Queue manipulation independent of a
// playlist does not exist on this device.

// DeviceGetState fetches the device's full state tree.
func (c *Client) DeviceGetState(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/device/state", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DevicePlay resumes playback.
func (c *Client) DevicePlay(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/device/play", nil, nil)
}

// DevicePause pauses playback.
func (c *Client) DevicePause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/device/pause", nil, nil)
}

// DeviceSkipTo jumps to an absolute index in the active playlist.
func (c *Client) DeviceSkipTo(ctx context.Context, index int) error {
	return c.do(ctx, http.MethodPost, "/api/device/skip", index, nil)
}

// DeviceSkipBy moves by a relative number of tracks.
func (c *Client) DeviceSkipBy(ctx context.Context, count int) error {
	return c.do(ctx, http.MethodPut, "/api/device/skip", count, nil)
}

// DeviceSeekTo seeks to an absolute position in milliseconds.
func (c *Client) DeviceSeekTo(ctx context.Context, ms int64) error {
	return c.do(ctx, http.MethodPost, "/api/device/seek", ms, nil)
}

// DeviceSeekBy seeks by a relative number of milliseconds.
func (c *Client) DeviceSeekBy(ctx context.Context, ms int64) error {
	return c.do(ctx, http.MethodPut, "/api/device/seek", ms, nil)
}

// DeviceSetPlaylist starts a device playlist at the given index.
func (c *Client) DeviceSetPlaylist(ctx context.Context, id string, index int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/device/play/%s/%d", id, index), nil, nil)
}

// DeviceSetVolumeTo sets the absolute volume percentage.
func (c *Client) DeviceSetVolumeTo(ctx context.Context, volume int) error {
	return c.do(ctx, http.MethodPost, "/api/device/volume", volume, nil)
}

// DeviceChangeVolumeBy adjusts the volume by a delta.
func (c *Client) DeviceChangeVolumeBy(ctx context.Context, delta int) error {
	return c.do(ctx, http.MethodPut, "/api/device/volume", delta, nil)
}

// DeviceSetPlayMode pushes the shuffle/repeat bits to the device.
func (c *Client) DeviceSetPlayMode(ctx context.Context, mode int) error {
	return c.do(ctx, http.MethodPost, "/api/device/playmode", mode, nil)
}

// DevicePlaylistPayload is a whole-playlist replacement. Membership and
// order changes always submit the complete target track-id list.
type DevicePlaylistPayload struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	TrackIDs []string `json:"tracks"`
}

// DevicePutPlaylist replaces a device playlist's track list wholesale.
func (c *Client) DevicePutPlaylist(ctx context.Context, p DevicePlaylistPayload) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/device/playlist/%s", p.ID), p, nil)
}
