package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TempPrefix marks in-progress files; they are never listed as artifacts.
const TempPrefix = ".tmp-"

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage directory required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Dir returns the base directory.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

// WriteAtomic streams write into a temporary sibling file and renames it to
// filename only after write, fsync and close all succeed. On any failure the
// temporary file is removed and filename is never created.
func (s *LocalStorage) WriteAtomic(filename string, write func(w io.Writer) error) (string, error) {
	if err := validateName(filename); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.baseDir, TempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", filename, err)
	}
	if err := os.Rename(tmpPath, s.resolve(filename)); err != nil {
		return "", fmt.Errorf("commit %s: %w", filename, err)
	}
	committed = true
	return filename, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	if err := validateName(filename); err != nil {
		return nil, err
	}
	file, err := os.Open(s.resolve(filename))
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// List returns the names of committed regular files, sorted.
// A missing base directory yields an empty list.
func (s *LocalStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.baseDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), TempPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	if err := validateName(filename); err != nil {
		return err
	}
	if err := os.Remove(s.resolve(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// Clear deletes every file in the base directory, temporary files included,
// but keeps the directory. A missing directory is not an error.
func (s *LocalStorage) Clear() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.baseDir, err)
	}
	deleted := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("clear %s: %w", entry.Name(), err)
		}
		deleted = append(deleted, entry.Name())
	}
	return deleted, nil
}

// Path exposes the underlying path of a stored file.
func (s *LocalStorage) Path(filename string) string {
	return s.resolve(filename)
}

func (s *LocalStorage) resolve(filename string) string {
	return filepath.Join(s.baseDir, filename)
}

func validateName(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return fmt.Errorf("invalid file name %q", filename)
	}
	return nil
}
