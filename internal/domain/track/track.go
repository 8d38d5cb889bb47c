// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"regexp"
)

// Track represents a playable library track.
// Contains only the shape the playback engine needs; the library
// service owns the full record.
type Track struct {
	ID         string   `json:"id" mapstructure:"id"`
	Title      string   `json:"title" mapstructure:"title"`
	Artists    []string `json:"artists,omitempty" mapstructure:"artists"`
	Album      string   `json:"album,omitempty" mapstructure:"album"`
	Kind       string   `json:"kind,omitempty" mapstructure:"kind"`         // container kind reported by the library
	Location   string   `json:"location,omitempty" mapstructure:"location"` // library-relative file location
	DurationMs int64    `json:"duration_ms" mapstructure:"duration_ms"`     // 0 if unknown
}

var extPattern = regexp.MustCompile(`(\.[A-Za-z0-9]{1,4})$`)

// StreamPath returns the server path an audio renderer should load.
// The extension comes from the file location when present, otherwise it
// is inferred from the library kind.
func (t *Track) StreamPath() string {
	ext := ""
	if t.Location != "" {
		if m := extPattern.FindStringSubmatch(t.Location); m != nil {
			ext = m[1]
		}
	}
	if ext == "" {
		switch t.Kind {
		case "MPEG audio file":
			ext = ".mp3"
		case "Purchased AAC audio file":
			ext = ".m4a"
		}
	}
	return fmt.Sprintf("/api/track/%s%s", t.ID, ext)
}
