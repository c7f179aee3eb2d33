package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore keeps uploaded recordings.
type FileStore interface {
	Save(name string, r io.Reader) (string, error)
	Exists(key string) bool
	Path(key string) string
	Remove(key string) error
}

// LocalFileStore stores files in one directory on disk.
type LocalFileStore struct {
	BaseDir string
}

func NewLocalFileStore(baseDir string) (*LocalFileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalFileStore{BaseDir: baseDir}, nil
}

// Save writes r under a unique key derived from name and returns the key.
func (fs *LocalFileStore) Save(name string, r io.Reader) (string, error) {
	key := uuid.NewString() + "_" + sanitize(name)
	path := filepath.Join(fs.BaseDir, key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	return key, nil
}

func (fs *LocalFileStore) Exists(key string) bool {
	if key == "" {
		return false
	}
	info, err := os.Stat(fs.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Path returns the on-disk location of key. Keys never escape BaseDir.
func (fs *LocalFileStore) Path(key string) string {
	return filepath.Join(fs.BaseDir, filepath.Base(key))
}

// Remove deletes key. A missing file is not an error.
func (fs *LocalFileStore) Remove(key string) error {
	if key == "" {
		return nil
	}
	err := os.Remove(fs.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// sanitize keeps letters, digits, dash, underscore and dot so the original
// extension survives.
func sanitize(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimLeft(b.String(), ".")
	if clean == "" {
		return "recording"
	}
	return clean
}
