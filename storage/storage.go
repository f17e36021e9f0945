package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists task artifacts under flat slash-separated keys. The
// interface exists so deployments can swap the local filesystem for an
// object store without touching the task runner.
type Storage interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// FileStorage keeps artifacts as files below a root directory.
type FileStorage struct {
	root string
}

func NewFileStorage(root string) (*FileStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root not set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("error creating storage root: %v", err)
	}
	return &FileStorage{root: root}, nil
}

func (s *FileStorage) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *FileStorage) Put(key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directory for %q: %v", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing %q: %v", key, err)
	}
	return nil
}

func (s *FileStorage) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %v", key, err)
	}
	return data, nil
}

func (s *FileStorage) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("error deleting %q: %v", key, err)
	}
	// drop the containing directory once its last artifact is gone;
	// Remove refuses non-empty directories
	if dir := filepath.Dir(path); dir != filepath.Clean(s.root) {
		os.Remove(dir)
	}
	return nil
}
