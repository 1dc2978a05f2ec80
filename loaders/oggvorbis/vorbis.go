// Package oggvorbis decodes Ogg/Vorbis files into interleaved float32 samples.
package oggvorbis

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

type Format struct {
	SampleRate int
	Channels   int
}

func LoadFile(path string) ([]float32, Format, error) {
	rawData, err := os.ReadFile(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("%s: failed to open: %w", path, err)
	}

	data, format, err := Load(rawData)
	if err != nil {
		return nil, Format{}, fmt.Errorf("%s: %w", path, err)
	}
	return data, format, nil
}

func Load(oggData []byte) ([]float32, Format, error) {
	return Read(bytes.NewReader(oggData))
}

func Read(r io.Reader) ([]float32, Format, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, Format{}, err
	}
	if format.Channels < 1 {
		return nil, Format{}, fmt.Errorf("invalid channel count %d", format.Channels)
	}
	return data, Format{SampleRate: format.SampleRate, Channels: format.Channels}, nil
}
