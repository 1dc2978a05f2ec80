//go:build cgo

package main

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/Lundis/go-synth/engine"
)

// playLive forwards a MIDI input port to the engine until ctx is done or the
// port fails.
func playLive(ctx context.Context, e *engine.Engine, name string) error {
	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("midi driver: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs: %w", err)
	}
	var found drivers.In
	for _, in := range ins {
		logger.Debug("MIDI input", "port", in.String())
		if found == nil && strings.Contains(in.String(), name) {
			found = in
		}
	}
	if found == nil {
		return fmt.Errorf("MIDI input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("opening %s: %w", found, err)
	}
	defer found.Close()

	if err := e.Start(); err != nil {
		return err
	}
	defer e.Stop()
	go logStats(ctx, e)

	failed := make(chan error, 1)
	stopListening, err := midi.ListenTo(found, func(msg midi.Message, timestampms int32) {
		if err := e.Send(msg, e.Now()); err != nil {
			logger.Warn("dropped MIDI message", "msg", msg.String(), "err", err)
		}
	}, midi.HandleError(func(listenErr error) {
		select {
		case failed <- listenErr:
		default:
		}
	}))
	if err != nil {
		return fmt.Errorf("listening on %s: %w", found, err)
	}
	defer stopListening()
	logger.Info("MIDI input connected", "device", found.String())

	select {
	case <-ctx.Done():
		_ = e.AllNotesOff()
		return ctx.Err()
	case err := <-failed:
		_ = e.AllNotesOff()
		return fmt.Errorf("MIDI input %s: %w", found, err)
	}
}
