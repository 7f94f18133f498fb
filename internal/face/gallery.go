// Package face matches face embeddings against a small gallery of known people.
package face

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sbinet/npyio"
)

// Ext is the file extension of stored encodings.
const Ext = ".npy"

// Unknown is the name reported when no gallery entry is close enough.
const Unknown = "unknown"

// ErrInvalidName is returned for person names that cannot be used as a file stem.
var ErrInvalidName = errors.New("invalid person name")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]*$`)

// KnownFace is one gallery entry.
type KnownFace struct {
	Name      string
	Embedding []float64
}

// LoadGallery reads every <name>.npy file in dir. Files that fail to decode are
// skipped and logged. A missing dir yields an empty gallery.
func LoadGallery(dir string, log zerolog.Logger) ([]KnownFace, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read known faces dir: %w", err)
	}

	var gallery []KnownFace
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Ext) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		vec, err := readEncoding(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipping unreadable face encoding")
			continue
		}
		gallery = append(gallery, KnownFace{
			Name:      strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Embedding: vec,
		})
	}

	sort.Slice(gallery, func(i, j int) bool { return gallery[i].Name < gallery[j].Name })
	return gallery, nil
}

// SaveEncoding writes vec to dir/<name>.npy, replacing an existing entry.
func SaveEncoding(dir, name string, vec []float64) (string, error) {
	if !namePattern.MatchString(name) || name == Unknown {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if len(vec) == 0 {
		return "", errors.New("empty embedding")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create known faces dir: %w", err)
	}

	path := filepath.Join(dir, name+Ext)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create encoding file: %w", err)
	}
	if err := npyio.Write(f, vec); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write encoding: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close encoding file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("store encoding: %w", err)
	}
	return path, nil
}

// RemoveEncoding deletes the gallery entry for name.
func RemoveEncoding(dir, name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return os.Remove(filepath.Join(dir, name+Ext))
}

func readEncoding(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var vec []float64
	if err := npyio.Read(f, &vec); err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("empty embedding")
	}
	return vec, nil
}
