//go:build linux && !android

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

const (
	sndPCMStreamPlayback      = 0
	sndPCMFormatFloatLE       = 14
	sndPCMAccessRWInterleaved = 3
	sndPCMBlocking            = 0
	alsaSoftResample          = 1
	alsaRecoverSilent         = 1
	alsaLibrary               = "libasound.so.2"
)

// libasound entry points, bound once by loadALSA.
var (
	alsaOnce sync.Once
	alsaErr  error

	sndPCMOpen      func(pcm *uintptr, name string, stream int32, mode int32) int32
	sndPCMSetParams func(pcm uintptr, format int32, access int32, channels uint32, rate uint32, softResample int32, latencyUs uint32) int32
	sndPCMGetParams func(pcm uintptr, bufferSize *uint64, periodSize *uint64) int32
	sndPCMWritei    func(pcm uintptr, buf unsafe.Pointer, frames uint64) int64
	sndPCMRecover   func(pcm uintptr, err int32, silent int32) int32
	sndPCMDelay     func(pcm uintptr, delay *int64) int32
	sndPCMDrain     func(pcm uintptr) int32
	sndPCMClose     func(pcm uintptr) int32
	sndStrerror     func(err int32) string
)

func loadALSA() error {
	alsaOnce.Do(func() {
		lib, err := purego.Dlopen(alsaLibrary, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			alsaErr = fmt.Errorf("alsa: %w", err)
			return
		}
		purego.RegisterLibFunc(&sndPCMOpen, lib, "snd_pcm_open")
		purego.RegisterLibFunc(&sndPCMSetParams, lib, "snd_pcm_set_params")
		purego.RegisterLibFunc(&sndPCMGetParams, lib, "snd_pcm_get_params")
		purego.RegisterLibFunc(&sndPCMWritei, lib, "snd_pcm_writei")
		purego.RegisterLibFunc(&sndPCMRecover, lib, "snd_pcm_recover")
		purego.RegisterLibFunc(&sndPCMDelay, lib, "snd_pcm_delay")
		purego.RegisterLibFunc(&sndPCMDrain, lib, "snd_pcm_drain")
		purego.RegisterLibFunc(&sndPCMClose, lib, "snd_pcm_close")
		purego.RegisterLibFunc(&sndStrerror, lib, "snd_strerror")
	})
	return alsaErr
}

func alsaError(op string, code int32) error {
	return fmt.Errorf("alsa: %s: %s", op, sndStrerror(code))
}

// ALSASink writes straight to an ALSA PCM through libasound, loaded at run
// time so no cgo is needed.
//
// The hardware buffer is fixed once opened. A smaller buffer size is enforced
// by waiting on the device delay before each write.
type ALSASink struct {
	device string
	logger *slog.Logger

	m          sync.Mutex
	handle     uintptr
	cfg        Config
	capacity   int
	bufferSize int
	underruns  int
}

func NewALSASink(device string, logger *slog.Logger) (*ALSASink, error) {
	if err := loadALSA(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ALSASink{device: device, logger: logger}, nil
}

func (s *ALSASink) Open(requested Config) (Config, error) {
	if err := requested.Validate(); err != nil {
		return Config{}, err
	}
	var handle uintptr
	if code := sndPCMOpen(&handle, s.device, sndPCMStreamPlayback, sndPCMBlocking); code < 0 {
		return Config{}, alsaError("open "+s.device, code)
	}
	capacity := requested.defaultCapacity()
	latency := requested.FrameDuration(capacity)
	code := sndPCMSetParams(handle, sndPCMFormatFloatLE, sndPCMAccessRWInterleaved,
		uint32(requested.ChannelCount), uint32(requested.SampleRate), alsaSoftResample,
		uint32(latency/time.Microsecond))
	if code < 0 {
		sndPCMClose(handle)
		return Config{}, alsaError("set params", code)
	}
	var bufferSize, periodSize uint64
	if code := sndPCMGetParams(handle, &bufferSize, &periodSize); code == 0 && bufferSize > 0 {
		capacity = int(bufferSize)
	}
	actual := requested
	actual.BufferCapacityInFrames = capacity

	s.m.Lock()
	defer s.m.Unlock()
	s.handle = handle
	s.cfg = actual
	s.capacity = capacity
	s.bufferSize = capacity
	s.logger.Debug("alsa device opened", "device", s.device, "bufferFrames", bufferSize, "periodFrames", periodSize)
	return actual, nil
}

func (s *ALSASink) Write(samples []float32) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.handle == 0 {
		return 0, ErrNotOpen
	}
	frames := len(samples) / s.cfg.ChannelCount
	if frames == 0 {
		return 0, nil
	}
	s.waitForRoomLocked(frames)

	n := sndPCMWritei(s.handle, unsafe.Pointer(&samples[0]), uint64(frames))
	if n < 0 {
		if !errors.Is(unix.Errno(-n), unix.EPIPE) {
			return 0, alsaError("write", int32(n))
		}
		s.underruns++
		if code := sndPCMRecover(s.handle, int32(n), alsaRecoverSilent); code < 0 {
			return 0, alsaError("recover", code)
		}
		n = sndPCMWritei(s.handle, unsafe.Pointer(&samples[0]), uint64(frames))
		if n < 0 {
			return 0, alsaError("write", int32(n))
		}
	}
	return int(n), nil
}

// waitForRoomLocked sleeps until the device holds no more than the buffer
// size once frames are added.
func (s *ALSASink) waitForRoomLocked(frames int) {
	for s.bufferSize < s.capacity {
		var delay int64
		if code := sndPCMDelay(s.handle, &delay); code < 0 {
			return
		}
		excess := int(delay) + frames - s.bufferSize
		if excess <= 0 || delay <= 0 {
			return
		}
		time.Sleep(s.cfg.FrameDuration(excess))
	}
}

func (s *ALSASink) UnderrunCount() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.underruns
}

func (s *ALSASink) BufferSizeInFrames() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.bufferSize
}

func (s *ALSASink) BufferCapacityInFrames() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.capacity
}

func (s *ALSASink) SetBufferSizeInFrames(n int) int {
	s.m.Lock()
	defer s.m.Unlock()
	s.bufferSize = clampBufferSize(n, max(s.cfg.FramesPerBlock, 1), s.capacity)
	return s.bufferSize
}

func (s *ALSASink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.handle == 0 {
		return nil
	}
	sndPCMDrain(s.handle)
	code := sndPCMClose(s.handle)
	s.handle = 0
	if code < 0 {
		return alsaError("close", code)
	}
	return nil
}
