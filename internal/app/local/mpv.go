package local

import (
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/supersonic-app/go-mpv"
)

// MpvRenderer drives one libmpv instance as an engine renderer. The
// engine owns two of these for gapless handoff.
type MpvRenderer struct {
	mu       sync.Mutex
	instance *mpv.Mpv
	slot     int
	sink     func(RendererEvent)
	baseURL  string
	source   string
	loading  bool // suppress end-of-file events caused by loadfile
	events   chan *mpv.Event
	quit     chan struct{}
}

// NewMpvRenderer creates the renderer for one slot. Sources passed to
// Load are server paths; baseURL turns them into absolute URLs.
func NewMpvRenderer(slot int, baseURL string, sink func(RendererEvent)) (*MpvRenderer, error) {
	instance := mpv.Create()
	if err := instance.SetOptionString("audio-display", "no"); err != nil {
		instance.TerminateDestroy()
		return nil, errors.Wrap(err, "failed to configure mpv")
	}
	if err := instance.SetOptionString("video", "no"); err != nil {
		instance.TerminateDestroy()
		return nil, errors.Wrap(err, "failed to configure mpv")
	}
	if err := instance.Initialize(); err != nil {
		instance.TerminateDestroy()
		return nil, errors.Wrap(err, "failed to initialize mpv")
	}
	r := &MpvRenderer{
		instance: instance,
		slot:     slot,
		sink:     sink,
		baseURL:  baseURL,
		events:   make(chan *mpv.Event),
		quit:     make(chan struct{}),
	}
	if err := instance.ObserveProperty(0, "playback-time", mpv.FORMAT_INT64); err != nil {
		zlog.Warn().Err(err).Msg("mpv: observe playback-time failed")
	}
	if err := instance.ObserveProperty(0, "duration", mpv.FORMAT_INT64); err != nil {
		zlog.Warn().Err(err).Msg("mpv: observe duration failed")
	}
	go r.pump()
	go r.eventLoop()
	return r, nil
}

func (r *MpvRenderer) pump() {
	for {
		select {
		case <-r.quit:
			return
		default:
		}
		evt := r.instance.WaitEvent(1)
		select {
		case r.events <- evt:
		case <-r.quit:
			return
		}
	}
}

func (r *MpvRenderer) eventLoop() {
	for {
		var evt *mpv.Event
		select {
		case <-r.quit:
			return
		case evt = <-r.events:
		}
		if evt == nil {
			continue
		}
		switch evt.Event_Id {
		case mpv.EVENT_PROPERTY_CHANGE:
			r.sink(RendererEvent{
				Type:       RendererTimeUpdate,
				Slot:       r.slot,
				PositionMs: r.PositionMs(),
				DurationMs: r.DurationMs(),
			})
		case mpv.EVENT_FILE_LOADED:
			r.mu.Lock()
			r.loading = false
			r.mu.Unlock()
			r.sink(RendererEvent{Type: RendererCanPlay, Slot: r.slot})
		case mpv.EVENT_END_FILE:
			r.mu.Lock()
			replacing := r.loading
			r.mu.Unlock()
			if !replacing {
				r.sink(RendererEvent{
					Type:       RendererEnded,
					Slot:       r.slot,
					PositionMs: r.PositionMs(),
					DurationMs: r.DurationMs(),
				})
			}
		}
	}
}

// Load implements Renderer. Loading leaves the instance paused; Play
// starts it.
func (r *MpvRenderer) Load(source string) {
	r.mu.Lock()
	r.source = source
	r.loading = source != ""
	r.mu.Unlock()
	if source == "" {
		if err := r.instance.Command([]string{"stop"}); err != nil {
			zlog.Debug().Err(err).Msg("mpv: stop failed")
		}
		return
	}
	if err := r.instance.SetProperty("pause", mpv.FORMAT_FLAG, true); err != nil {
		zlog.Debug().Err(err).Msg("mpv: pause before load failed")
	}
	if err := r.instance.Command([]string{"loadfile", r.baseURL + source}); err != nil {
		zlog.Warn().Err(err).Str("source", source).Msg("mpv: loadfile failed")
	}
}

// Source implements Renderer.
func (r *MpvRenderer) Source() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

// Play implements Renderer.
func (r *MpvRenderer) Play() error {
	return r.instance.SetProperty("pause", mpv.FORMAT_FLAG, false)
}

// Pause implements Renderer.
func (r *MpvRenderer) Pause() {
	if err := r.instance.SetProperty("pause", mpv.FORMAT_FLAG, true); err != nil {
		zlog.Debug().Err(err).Msg("mpv: pause failed")
	}
}

// SetVolume implements Renderer.
func (r *MpvRenderer) SetVolume(percent int) {
	if err := r.instance.SetProperty("volume", mpv.FORMAT_INT64, int64(percent)); err != nil {
		zlog.Debug().Err(err).Msg("mpv: set volume failed")
	}
}

// SetPositionMs implements Renderer.
func (r *MpvRenderer) SetPositionMs(ms int64) {
	sec := strconv.FormatFloat(float64(ms)/1000.0, 'f', 3, 64)
	if err := r.instance.Command([]string{"seek", sec, "absolute"}); err != nil {
		zlog.Debug().Err(err).Msg("mpv: seek failed")
	}
}

// PositionMs implements Renderer.
func (r *MpvRenderer) PositionMs() int64 {
	return r.propertyMs("playback-time")
}

// DurationMs implements Renderer.
func (r *MpvRenderer) DurationMs() int64 {
	return r.propertyMs("duration")
}

func (r *MpvRenderer) propertyMs(name string) int64 {
	value, err := r.instance.GetProperty(name, mpv.FORMAT_INT64)
	if err != nil || value == nil {
		return 0
	}
	sec, ok := value.(int64)
	if !ok {
		return 0
	}
	return sec * 1000
}

// Close implements Renderer.
func (r *MpvRenderer) Close() error {
	close(r.quit)
	r.instance.TerminateDestroy()
	return nil
}
