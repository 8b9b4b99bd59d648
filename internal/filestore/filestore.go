package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for names that do not reduce to a file name.
var ErrInvalidName = errors.New("invalid file name")

// Store persists uploaded spreadsheets under one directory, keyed by their
// original name. A second upload with the same name replaces the first.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the uploads directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data verbatim to <dir>/<name> and returns that path.
func (s *Store) Save(data []byte, originalName string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", ErrInvalidName
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload %s: %w", name, err)
	}
	return path, nil
}
