// Command synthplay plays MIDI through the synthesizer engine.
//
// The notes come from a standard MIDI file, a live MIDI port, a raw MIDI
// device node, or a built in demo when none of those is given. With a
// wav:<path> sink the song is rendered to a file as fast as possible.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Lundis/go-synth/audio"
	"github.com/Lundis/go-synth/engine"
	"github.com/Lundis/go-synth/midiinput"
	"github.com/Lundis/go-synth/patch"
	"github.com/Lundis/go-synth/playlist"
)

var (
	sinkName     = flag.String("sink", "oto", "audio sink: null, oto, pulse, alsa or wav:<path>")
	sampleRate   = flag.Int("samplerate", engine.DefaultSampleRate, "sample rate")
	channelCount = flag.Int("channelcount", engine.DefaultChannelCount, "number of channels")
	block        = flag.Int("block", engine.DefaultFramesPerBlock, "frames per block")
	bufferFrames = flag.Int("buffer", 0, "sink buffer capacity in frames, 0 for the sink default")
	tune         = flag.Bool("tune", false, "shrink the sink buffer until underruns appear")
	patchDir     = flag.String("patches", "", "folder with a patches.json bank")
	songFile     = flag.String("file", "", "standard MIDI file to play")
	livePort     = flag.String("live", "", "play from the MIDI input port whose name contains this")
	rawDevice    = flag.String("raw", "", "play from a raw MIDI byte stream such as /dev/snd/midiC1D0")
	playlistDir  = flag.String("playlists", "", "folder with a playlist.json")
	playlistId   = flag.String("playlist", "", "id of the playlist to play from -playlists")
	tail         = flag.Duration("tail", 1500*time.Millisecond, "time to keep rendering after the last event")
	debug        = flag.Bool("debug", false, "enable debug logging (adds source location)")
)

var logger *slog.Logger

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	flag.Parse()
	initLogger(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("synthplay failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	bank := patch.DefaultBank()
	if *patchDir != "" {
		var err error
		if bank, err = patch.LoadFolder(*patchDir, logger); err != nil {
			return err
		}
	}

	sink, err := audio.NewSink(*sinkName, logger)
	if err != nil {
		return err
	}
	offline := strings.HasPrefix(*sinkName, "wav:")
	e, err := engine.New(sink, engine.Options{
		SampleRate:             *sampleRate,
		ChannelCount:           *channelCount,
		FramesPerBlock:         *block,
		BufferCapacityInFrames: *bufferFrames,
		FrameClock:             offline,
		Bank:                   bank,
		Logger:                 logger,
		LatencyTuning:          *tune,
	})
	if err != nil {
		return err
	}
	logger.Info("synthplay starting", "sink", *sinkName, "sampleRate", *sampleRate, "block", *block, "tune", *tune)

	switch {
	case *livePort != "":
		return playLive(ctx, e, *livePort)
	case *rawDevice != "":
		return playRaw(ctx, e, *rawDevice)
	case *playlistDir != "":
		if offline {
			return errors.New("playlists need a real-time sink")
		}
		return playList(ctx, e, *playlistDir, playlist.Id(*playlistId))
	}

	events := demoSong()
	if *songFile != "" {
		if events, err = midiinput.ReadFile(*songFile); err != nil {
			return err
		}
		logger.Info("loaded song", "file", *songFile, "events", len(events), "length", midiinput.Duration(events))
	}
	if offline {
		return render(ctx, e, events)
	}
	return play(ctx, e, events)
}

// play streams events into a running engine.
func play(ctx context.Context, e *engine.Engine, events []midiinput.Event) error {
	if err := e.Start(); err != nil {
		return err
	}
	defer e.Stop()
	go logStats(ctx, e)

	err := midiinput.Play(ctx, events, e, midiinput.DefaultLookahead)
	if err == nil {
		err = sleep(ctx, midiinput.DefaultLookahead+*tail)
	}
	_ = e.AllNotesOff()
	if runErr := e.Err(); runErr != nil {
		return runErr
	}
	return err
}

// render schedules the whole song before starting, so the engine can run
// ahead of real time on its frame clock.
func render(ctx context.Context, e *engine.Engine, events []midiinput.Event) error {
	length := midiinput.Duration(events)
	if err := midiinput.Play(ctx, events, e, length+time.Second); err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		return err
	}
	defer e.Stop()

	end := int64(length + *tail)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for e.Now() < end {
		if e.State() != engine.Running {
			if err := e.Err(); err != nil {
				return err
			}
			return errors.New("render loop stopped early")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	logger.Info("rendered", "sink", *sinkName, "length", time.Duration(e.Now()), "blocks", e.Stats().BlocksRendered)
	return nil
}

func playList(ctx context.Context, e *engine.Engine, dir string, id playlist.Id) error {
	set, err := playlist.LoadFolder(dir, logger)
	if err != nil {
		return err
	}
	pl, ok := set[id]
	if !ok {
		return fmt.Errorf("no playlist %q in %s", id, dir)
	}
	if err := e.Start(); err != nil {
		return err
	}
	defer e.Stop()
	go logStats(ctx, e)

	for _, track := range pl.Tracks {
		logger.Info("queued", "track", track.Name, "author", track.Author, "length", track.Length())
	}
	err = pl.Play(ctx, e, midiinput.DefaultLookahead)
	if runErr := e.Err(); runErr != nil {
		return runErr
	}
	return err
}

// playRaw reads MIDI bytes from a device node until ctx is done.
func playRaw(ctx context.Context, e *engine.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		f.Close()
		return err
	}
	defer e.Stop()
	go logStats(ctx, e)

	done := make(chan error, 1)
	go func() {
		_, err := midiinput.NewFramer(e).ReadFrom(f)
		done <- err
	}()
	logger.Info("reading raw MIDI", "device", path)
	select {
	case <-ctx.Done():
		// Closing may not interrupt a read on a device node, so the reader
		// is left to exit with the process.
		f.Close()
		return ctx.Err()
	case err := <-done:
		f.Close()
		return err
	}
}

func logStats(ctx context.Context, e *engine.Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s := e.Stats()
		if s.State != engine.Running {
			return
		}
		logger.Debug("engine",
			"blocks", s.BlocksRendered,
			"voices", s.ActiveVoices,
			"pending", s.PendingEvents,
			"dropped", s.DroppedEvents,
			"underruns", s.Underruns,
			"bufferFrames", s.BufferSizeInFrames,
			"tuner", s.TunerState)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
