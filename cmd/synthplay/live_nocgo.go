//go:build !cgo

package main

import (
	"context"
	"errors"

	"github.com/Lundis/go-synth/engine"
)

func playLive(ctx context.Context, e *engine.Engine, name string) error {
	return errors.New("live MIDI input needs a cgo build; try -raw with a MIDI device node")
}
