// Package main provides the playback control CLI entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/local"
	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/app/roomspeaker"
	"github.com/osa030/cuebox/internal/app/tokendevice"
	"github.com/osa030/cuebox/internal/app/transport"
	"github.com/osa030/cuebox/internal/infra/api"
	"github.com/osa030/cuebox/internal/infra/config"
	"github.com/osa030/cuebox/internal/infra/logger"
	"github.com/osa030/cuebox/internal/infra/store"
)

var (
	app        = kingpin.New("playerctl", "cuebox playback control client")
	configPath = app.Flag("config", "Path to config file").Default("config/cuebox.yaml").String()
	backend    = app.Flag("backend", "Playback backend (local, roomSpeaker, tokenDevice)").Default("local").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	statusCmd = app.Command("status", "Print the current playback state")

	watchCmd = app.Command("watch", "Stream playback state changes until interrupted")

	playCmd  = app.Command("play", "Resume playback")
	pauseCmd = app.Command("pause", "Pause playback")

	skipCmd = app.Command("skip", "Skip within the queue")
	skipTo  = skipCmd.Flag("to", "Absolute queue position").IsSetByUser(&skipToSet).Int()
	skipBy  = skipCmd.Flag("by", "Relative number of tracks").Default("1").Int()

	seekCmd = app.Command("seek", "Seek within the current track")
	seekTo  = seekCmd.Flag("to", "Absolute position in milliseconds").IsSetByUser(&seekToSet).Int64()
	seekBy  = seekCmd.Flag("by", "Relative offset in milliseconds").IsSetByUser(&seekBySet).Int64()

	volumeCmd = app.Command("volume", "Set or adjust the volume")
	volumeTo  = volumeCmd.Flag("to", "Absolute volume percentage").IsSetByUser(&volToSet).Int()
	volumeBy  = volumeCmd.Flag("by", "Relative volume delta").IsSetByUser(&volBySet).Int()

	shuffleCmd = app.Command("shuffle", "Toggle shuffle mode")
	repeatCmd  = app.Command("repeat", "Toggle repeat mode")

	queueCmd      = app.Command("queue", "Start a library playlist")
	queuePlaylist = queueCmd.Arg("playlist-id", "Playlist ID").Required().String()
	queueIndex    = queueCmd.Arg("index", "Start index").Default("0").Int()

	playlistsCmd = app.Command("playlists", "List the playlists stored on the token device")

	skipToSet bool
	seekToSet bool
	seekBySet bool
	volToSet  bool
	volBySet  bool
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.Output,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if err := logger.Init(loggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, command); err != nil {
		zlog.Error().Msgf("playerctl: %v", err)
		os.Exit(1)
	}
}

// run wires the selected backend behind the facade and executes one
// command. A separate function so defers fire on error returns.
func run(cfg *config.Config, command string) error {
	client := api.New(cfg.Server.BaseURL, cfg.Server.Token)

	channel := transport.New(
		wsURL(cfg.Server.BaseURL, cfg.Server.WSPath),
		transport.WithReconnectDelay(cfg.Playback.ReconnectDelay()),
	)
	channel.Run()
	defer channel.Close()
	if *backend != "local" {
		waitConnected(channel, 3*time.Second)
	}

	facade := playback.NewFacade()
	defer func() { _ = facade.Close() }()

	b, cleanup, err := buildBackend(cfg, client, channel)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	facade.SwitchTo(b)

	switch command {
	case statusCmd.FullCommand():
		printState(facade.State())
		return nil
	case watchCmd.FullCommand():
		return watch(facade)
	case playCmd.FullCommand():
		return facade.Play()
	case pauseCmd.FullCommand():
		return facade.Pause()
	case skipCmd.FullCommand():
		if skipToSet {
			return facade.SkipTo(*skipTo)
		}
		return facade.SkipBy(*skipBy)
	case seekCmd.FullCommand():
		if seekBySet && !seekToSet {
			return facade.SeekBy(*seekBy)
		}
		return facade.SeekTo(*seekTo)
	case volumeCmd.FullCommand():
		if volBySet && !volToSet {
			return facade.ChangeVolumeBy(*volumeBy)
		}
		return facade.SetVolumeTo(*volumeTo)
	case shuffleCmd.FullCommand():
		return facade.ToggleShuffle()
	case repeatCmd.FullCommand():
		return facade.ToggleRepeat()
	case queueCmd.FullCommand():
		return facade.SelectPlaylist(*queuePlaylist, *queueIndex)
	case playlistsCmd.FullCommand():
		dev, ok := b.(*tokendevice.Adapter)
		if !ok {
			return errors.New("playlists requires --backend tokenDevice")
		}
		for _, pl := range dev.Playlists() {
			fmt.Printf("%s  %s (%d tracks)\n", pl.ID, pl.Name, len(pl.TrackIDs))
		}
		return nil
	}
	return nil
}

// waitConnected blocks briefly until the push channel has a live
// connection, so the first deltas after the initial fetch are not
// missed while the dial is still in flight. Timing out is not fatal;
// the adapters refetch on reconnect.
func waitConnected(ch *transport.Channel, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ch.Connected() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	zlog.Warn().Msg("playerctl: push channel not connected yet")
}

func buildBackend(cfg *config.Config, client *api.Client, channel *transport.Channel) (playback.Backend, func(), error) {
	switch *backend {
	case "local":
		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		engine, err := local.NewEngine(local.Config{
			NewRenderer: func(slot int, sink func(local.RendererEvent)) (local.Renderer, error) {
				return local.NewMpvRenderer(slot, cfg.Server.BaseURL, sink)
			},
			Store:         st,
			Library:       client,
			TickInterval:  cfg.Playback.TickInterval(),
			DefaultVolume: cfg.Playback.DefaultVolume,
		})
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return engine, func() { _ = st.Close() }, nil

	case "roomSpeaker":
		a, err := roomspeaker.New(roomspeaker.Config{
			API:          client,
			Channel:      channel,
			TickInterval: cfg.Playback.TickInterval(),
		})
		return a, nil, err

	case "tokenDevice":
		a, err := tokendevice.New(tokendevice.Config{
			API:          client,
			Channel:      channel,
			TickInterval: cfg.Playback.TickInterval(),
		})
		return a, nil, err
	}
	return nil, nil, errors.Newf("unknown backend %q", *backend)
}

// watch prints every published state change until SIGINT/SIGTERM.
func watch(facade *playback.Facade) error {
	unsub := facade.Subscribe(printState)
	defer unsub()

	printState(facade.State())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}

func printState(st playback.State) {
	title := "(nothing)"
	if t := st.CurrentTrack(); t != nil {
		title = t.Title
		if len(t.Artists) > 0 {
			title = fmt.Sprintf("%s - %s", strings.Join(t.Artists, ", "), t.Title)
		}
	}
	fmt.Printf("[%s] %s %s  %s/%s  vol=%d%% shuffle=%v repeat=%v (%d/%d)\n",
		st.Kind, st.Status, title,
		formatMs(st.CurrentTimeMs), formatMs(st.DurationMs),
		st.VolumePercent,
		st.PlayMode.Has(playback.ModeShuffle),
		st.PlayMode.Has(playback.ModeRepeat),
		st.Cursor+1, len(st.Queue),
	)
}

func formatMs(ms int64) string {
	sec := ms / 1000
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

// wsURL derives the push channel URL from the HTTP base URL.
func wsURL(baseURL, path string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + path
}
