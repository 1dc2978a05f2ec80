//go:build !linux || android

package audio

import "log/slog"

// ALSASink is only available on Linux. NewALSASink always fails here.
type ALSASink struct{ NullSink }

func NewALSASink(device string, logger *slog.Logger) (*ALSASink, error) {
	return nil, ErrUnsupported
}
