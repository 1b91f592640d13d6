package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MrWong99/zhfix/internal/transcript/lexicon"
	"github.com/MrWong99/zhfix/internal/transcript/phonetic"
)

// ManifestFile is the name of the manifest inside a snapshot directory.
const ManifestFile = "manifest.json"

// DataFiles lists the data files of a snapshot in write order.
var DataFiles = []string{
	phonetic.ReadingsFile,
	phonetic.GroupsFile,
	lexicon.WordFreqFile,
	lexicon.BigramFreqFile,
}

// Manifest describes a snapshot directory. It carries no timestamps so that
// rebuilding from the same inputs reproduces it byte for byte.
type Manifest struct {
	Version string            `json:"version"`
	Files   map[string]string `json:"files"`
	Chars   int               `json:"chars"`
	Groups  int               `json:"groups"`
	Words   int               `json:"words"`
	Bigrams int               `json:"bigrams"`
}

// ReadManifest reads the manifest of the snapshot in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("knowledge: read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: parse manifest: %v", ErrInvalid, err)
	}
	if m.Version == "" {
		return m, fmt.Errorf("%w: manifest has no version", ErrInvalid)
	}
	return m, nil
}

// WriteDir writes s into dir. Each file is written to a temporary name and
// renamed into place; the manifest goes last, so a reader that sees the new
// manifest also sees the new data files.
func WriteDir(dir string, s *Snapshot) error {
	files, err := encode(s.Index, s.Words, s.Bigrams)
	if err != nil {
		return err
	}
	manifest, err := json.MarshalIndent(s.Manifest(), "", "  ")
	if err != nil {
		return fmt.Errorf("knowledge: encode manifest: %w", err)
	}
	manifest = append(manifest, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("knowledge: create %s: %w", dir, err)
	}
	for _, name := range DataFiles {
		if err := writeAtomic(dir, name, files[name]); err != nil {
			return err
		}
	}
	if err := writeAtomic(dir, ManifestFile, manifest); err != nil {
		return err
	}
	slog.Info("snapshot written", "dir", dir, "version", s.Version())
	return nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("knowledge: write %s: %w", name, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("knowledge: write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("knowledge: write %s: %w", name, err)
	}
	return nil
}

// LoadDir reads and validates the snapshot in dir. Every data file must match
// the hash recorded in the manifest.
func LoadDir(dir string) (*Snapshot, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	raw := make(map[string][]byte, len(DataFiles))
	for _, name := range DataFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("knowledge: read %s: %w", name, err)
		}
		if got, want := hashBytes(data), m.Files[name]; got != want {
			return nil, fmt.Errorf("%w: %s hash %s does not match manifest %s", ErrInvalid, name, got, want)
		}
		raw[name] = data
	}

	ix, err := phonetic.ReadIndex(bytes.NewReader(raw[phonetic.ReadingsFile]), bytes.NewReader(raw[phonetic.GroupsFile]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	words, err := lexicon.ReadWordFreq(bytes.NewReader(raw[lexicon.WordFreqFile]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	bigrams, err := lexicon.ReadBigramFreq(bytes.NewReader(raw[lexicon.BigramFreqFile]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	s, err := assemble(ix, words, bigrams, m.Files)
	if err != nil {
		return nil, err
	}
	if s.Version() != m.Version {
		return nil, fmt.Errorf("%w: manifest version %s, content version %s", ErrInvalid, m.Version, s.Version())
	}
	return s, nil
}
