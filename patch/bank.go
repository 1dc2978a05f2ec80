package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/Lundis/go-synth/loaders/oggvorbis"
	"github.com/Lundis/go-synth/loaders/wav"
	"golang.org/x/tools/godoc/vfs"
)

// RegistryFile is the file at the root of a patch folder that lists the patches.
const RegistryFile = "patches.json"

// Bank holds the patches of a program set. It is read-only once loaded and
// can be shared between engines.
type Bank struct {
	patches map[int]*Patch
}

// DefaultBank has no patches of its own, so every program uses DefaultPatch.
func DefaultBank() *Bank {
	return &Bank{patches: map[int]*Patch{}}
}

// Patch returns the patch for program, or DefaultPatch if the bank lacks it.
func (b *Bank) Patch(program int) *Patch {
	if p, ok := b.patches[program]; ok {
		return p
	}
	return DefaultPatch(program)
}

// Len returns the number of patches loaded into the bank.
func (b *Bank) Len() int {
	return len(b.patches)
}

// LoadFolder loads a bank from a regular folder.
// See Load for more information.
func LoadFolder(folder string, logger *slog.Logger) (*Bank, error) {
	return Load(vfs.OS(folder), logger)
}

// Load loads a bank from a virtual filesystem.
// At the root of the filesystem there must be a "patches.json" file, which
// references any wavetables to be loaded. Wavetables may be .wav or .ogg and
// are mixed down to mono. Patches whose wavetable cannot be read are skipped
// and fall back to the default patch for their program.
func Load(fileSystem vfs.Opener, logger *slog.Logger) (*Bank, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	entries, err := loadRegistry(fileSystem, RegistryFile)
	if err != nil {
		return nil, err
	}
	cachedDiskReads := make(map[string][]float32)
	bank := DefaultBank()
	for _, e := range entries {
		p, err := e.toPatch()
		if err != nil {
			logger.Warn("Skipping invalid patch", "err", err)
			continue
		}
		if e.Wavetable != "" {
			table, ok := cachedDiskReads[e.Wavetable]
			if !ok {
				table, err = loadWavetable(fileSystem, e.Wavetable)
				if err != nil {
					logger.Warn("Failed to load wavetable", "path", e.Wavetable, "program", p.Program, "err", err)
					continue
				}
				cachedDiskReads[e.Wavetable] = table
			}
			p.Table = table
		}
		if _, dup := bank.patches[p.Program]; dup {
			logger.Warn("Duplicate patch, keeping the last one", "program", p.Program)
		}
		bank.patches[p.Program] = p
	}

	logger.Info(fmt.Sprintf("Loaded %d patches in %.2fs", bank.Len(), time.Since(start).Seconds()))
	return bank, nil
}

func loadWavetable(fs vfs.Opener, file string) ([]float32, error) {
	raw, err := readFile(fs, file)
	if err != nil {
		return nil, err
	}
	var data []float32
	var channels int
	switch strings.ToLower(path.Ext(file)) {
	case ".wav":
		var format wav.Format
		data, format, err = wav.Decode(raw)
		channels = format.Channels
	case ".ogg":
		var format oggvorbis.Format
		data, format, err = oggvorbis.Read(bytes.NewReader(raw))
		channels = format.Channels
	default:
		return nil, fmt.Errorf("unsupported wavetable format %q", path.Ext(file))
	}
	if err != nil {
		return nil, err
	}
	table := downmix(data, channels)
	if len(table) == 0 {
		return nil, fmt.Errorf("%s: no samples", file)
	}
	return table, nil
}

// downmix averages interleaved frames into one channel.
func downmix(data []float32, channels int) []float32 {
	if channels <= 1 {
		return data
	}
	mono := make([]float32, len(data)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += data[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

func readFile(fs vfs.Opener, path string) (data []byte, err error) {
	file, err := fs.Open(path)
	if err != nil {
		return
	}
	data, err = io.ReadAll(file)
	_ = file.Close()
	return
}

func loadRegistry(fs vfs.Opener, path string) (registry []*patchEntry, err error) {
	data, err := readFile(fs, path)
	if err != nil {
		err = fmt.Errorf("failed to open %s: %w", path, err)
		return
	}
	err = json.Unmarshal(data, &registry)
	if err != nil {
		err = fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return
}
