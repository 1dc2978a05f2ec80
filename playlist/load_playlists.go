package playlist

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/tools/godoc/vfs"

	"github.com/Lundis/go-synth/midiinput"
)

// RegistryFile is the file Load reads the playlists from.
const RegistryFile = "playlist.json"

// Set holds loaded playlists by id.
type Set map[Id]*PlayList

// LoadFolder loads playlists from a regular folder.
// See Load for more information.
func LoadFolder(folder string, logger *slog.Logger) (Set, error) {
	return Load(vfs.OS(folder), logger)
}

// Load loads playlists from a virtual filesystem.
// At the root of the filesystem there must be a "playlist.json" file, which
// references the MIDI files to be loaded. A playlist with a track that can't
// be read is skipped.
func Load(fileSystem vfs.Opener, logger *slog.Logger) (Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	playlists, err := loadRegistry(fileSystem, RegistryFile)
	if err != nil {
		return nil, err
	}
	set := make(Set, len(playlists))
playlistLoop:
	for _, pl := range playlists {
		for _, track := range pl.Tracks {
			events, err := readSong(fileSystem, track.Path)
			if err != nil {
				logger.Warn("failed to read song", "playlist", pl.Id, "path", track.Path, "err", err)
				continue playlistLoop
			}
			track.events = events
		}
		set[pl.Id] = pl
	}

	logger.Info(fmt.Sprintf("Loaded %d playlists in %.2fs", len(set),
		time.Since(start).Seconds()))
	return set, nil
}

func readSong(fs vfs.Opener, path string) ([]midiinput.Event, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return midiinput.Read(file)
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

func loadRegistry(fs vfs.Opener, path string) (registry []*PlayList, err error) {
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
