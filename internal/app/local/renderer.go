// Package local implements the client-authoritative dual-renderer
// playback engine.
package local

// RendererEventType identifies a renderer event.
type RendererEventType int

const (
	// RendererCanPlay fires when the loaded source is ready to start.
	RendererCanPlay RendererEventType = iota
	// RendererTimeUpdate carries an authoritative position reading.
	RendererTimeUpdate
	// RendererEnded fires when the source played to its end.
	RendererEnded
)

// RendererEvent is delivered to the engine's event sink. Slot says
// which of the two renderers produced it.
type RendererEvent struct {
	Type       RendererEventType
	Slot       int
	PositionMs int64
	DurationMs int64
}

// Renderer is one of the engine's two audio outputs. While one plays
// the current track the other holds the next one preloaded, so a track
// boundary is a swap, not a fresh load. Renderers are owned exclusively
// by the engine.
type Renderer interface {
	// Load points the renderer at a new source without starting it.
	// Loading replaces whatever was buffered.
	Load(source string)
	// Source returns the currently loaded source, "" when empty.
	Source() string
	Play() error
	Pause()
	SetVolume(percent int)
	// SetPositionMs seeks within the loaded source.
	SetPositionMs(ms int64)
	PositionMs() int64
	DurationMs() int64
	Close() error
}
