// Package playlist provides the Playlist domain entity.
package playlist

// Playlist represents an ordered list of track IDs.
// The playback engine only reads this shape; playlist CRUD lives in the
// library service.
type Playlist struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TrackIDs []string `json:"track_ids"`
}

// Contains reports whether the playlist includes the given track ID.
func (p *Playlist) Contains(trackID string) bool {
	for _, id := range p.TrackIDs {
		if id == trackID {
			return true
		}
	}
	return false
}
