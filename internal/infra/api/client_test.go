package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	requests := &[]recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		*requests = append(*requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestClient_LoadPlaylist(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK, `{
		"items": [
			{"id": "t1", "title": "One", "duration_ms": 180000},
			{"id": "t2", "title": "Two", "duration_ms": 200000}
		]
	}`)
	c := New(srv.URL, "secret")

	tracks, err := c.LoadPlaylist(context.Background(), "pl-1")
	require.NoError(t, err)

	require.Len(t, tracks, 2)
	assert.Equal(t, "t1", tracks[0].ID)
	assert.Equal(t, int64(200_000), tracks[1].DurationMs)

	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodGet, (*requests)[0].Method)
	assert.Equal(t, "/api/playlist/pl-1", (*requests)[0].Path)
	assert.Equal(t, "Bearer secret", (*requests)[0].Auth)
}

func TestClient_NoAuthHeaderWithoutToken(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK, `{"items":[]}`)
	c := New(srv.URL, "")

	_, err := c.LoadPlaylist(context.Background(), "pl-1")
	require.NoError(t, err)
	assert.Empty(t, (*requests)[0].Auth)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusBadGateway, "")
	c := New(srv.URL, "")

	_, err := c.LoadPlaylist(context.Background(), "pl-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_SpeakerVerbs(t *testing.T) {
	// Absolute commands POST, relative commands PUT.
	tests := []struct {
		name   string
		call   func(c *Client) error
		method string
		path   string
		body   string
	}{
		{
			name:   "play",
			call:   func(c *Client) error { return c.SpeakerPlay(context.Background()) },
			method: http.MethodPost,
			path:   "/api/speaker/play",
		},
		{
			name:   "skip to absolute index",
			call:   func(c *Client) error { return c.SpeakerSkipTo(context.Background(), 3) },
			method: http.MethodPost,
			path:   "/api/speaker/skip",
			body:   "3",
		},
		{
			name:   "skip by relative count",
			call:   func(c *Client) error { return c.SpeakerSkipBy(context.Background(), -1) },
			method: http.MethodPut,
			path:   "/api/speaker/skip",
			body:   "-1",
		},
		{
			name:   "seek to absolute position",
			call:   func(c *Client) error { return c.SpeakerSeekTo(context.Background(), 30000) },
			method: http.MethodPost,
			path:   "/api/speaker/seek",
			body:   "30000",
		},
		{
			name:   "seek by relative offset",
			call:   func(c *Client) error { return c.SpeakerSeekBy(context.Background(), -5000) },
			method: http.MethodPut,
			path:   "/api/speaker/seek",
			body:   "-5000",
		},
		{
			name:   "set absolute volume",
			call:   func(c *Client) error { return c.SpeakerSetVolumeTo(context.Background(), 40) },
			method: http.MethodPost,
			path:   "/api/speaker/volume",
			body:   "40",
		},
		{
			name:   "change volume by delta",
			call:   func(c *Client) error { return c.SpeakerChangeVolumeBy(context.Background(), 5) },
			method: http.MethodPut,
			path:   "/api/speaker/volume",
			body:   "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := newRecordingServer(t, http.StatusOK, "")
			c := New(srv.URL, "")

			require.NoError(t, tt.call(c))

			require.Len(t, *requests, 1)
			assert.Equal(t, tt.method, (*requests)[0].Method)
			assert.Equal(t, tt.path, (*requests)[0].Path)
			assert.Equal(t, tt.body, (*requests)[0].Body)
		})
	}
}

func TestClient_DevicePutPlaylist(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK, "")
	c := New(srv.URL, "")

	err := c.DevicePutPlaylist(context.Background(), DevicePlaylistPayload{
		ID:       "pl-1",
		Name:     "Morning",
		TrackIDs: []string{"t2", "t1"},
	})
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodPut, (*requests)[0].Method)
	assert.Equal(t, "/api/device/playlist/pl-1", (*requests)[0].Path)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte((*requests)[0].Body), &payload))
	assert.Equal(t, []any{"t2", "t1"}, payload["tracks"])
}

func TestClient_SpeakerSetPlaylist(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK, "")
	c := New(srv.URL, "")

	require.NoError(t, c.SpeakerSetPlaylist(context.Background(), "pl-9", 4))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/speaker/queue", req.Path)
	assert.Contains(t, req.Query, "playlist=pl-9")
	assert.Contains(t, req.Query, "index=4")
}
