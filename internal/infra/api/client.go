// Package api provides the HTTP client for the library server and the
// playback devices it proxies. The devices' own transports are black
// boxes behind these endpoints; authoritative state comes back over the
// push channel.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuebox/internal/domain/track"
)

// Client is a thin JSON REST client with bearer-token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given server base URL.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// LoadPlaylist returns the ordered tracks of a library playlist.
func (c *Client) LoadPlaylist(ctx context.Context, id string) ([]track.Track, error) {
	var out struct {
		Items []track.Track `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/playlist/%s", id), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "failed to load playlist %s", id)
	}
	return out.Items, nil
}

// do performs one request. A nil out skips response decoding; a nil
// body sends no payload, any other body is sent as JSON.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s %s: failed to decode response", method, path)
	}
	return nil
}
