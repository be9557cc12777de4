// Package storage persists generated images through a host-like file
// storage contract rooted at a named data source.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"portraitd/internal/common/fsutil"
)

// RootData is the only storage root LocalStorage serves.
const RootData = "data"

var (
	// ErrInvalidPath is returned for paths escaping the storage root.
	ErrInvalidPath = errors.New("invalid storage path")
	// ErrUnknownRoot is returned for any root other than RootData.
	ErrUnknownRoot = errors.New("unknown storage root")
)

// FileStorage is the file storage contract images are saved through.
// Paths are slash separated and relative to root.
type FileStorage interface {
	// Browse lists the files directly inside dir. It fails if dir is absent.
	Browse(ctx context.Context, root, dir string) ([]string, error)
	// CreateDirectory creates one directory level. The parent must exist.
	CreateDirectory(ctx context.Context, root, dir string) error
	// Upload writes name into dir and returns the stored path.
	Upload(ctx context.Context, root, dir, name string, data []byte) (string, error)
}

// LocalStorage implements FileStorage on the local disk under a base directory.
type LocalStorage struct {
	base string
}

// NewLocalStorage serves RootData from base, creating base if needed.
func NewLocalStorage(base string) (*LocalStorage, error) {
	base, err := fsutil.ExpandHome(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage base: %w", err)
	}
	return &LocalStorage{base: base}, nil
}

// Base returns the directory RootData maps to.
func (s *LocalStorage) Base() string { return s.base }

func (s *LocalStorage) resolve(root, p string) (string, string, error) {
	if root != RootData {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownRoot, root)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	return clean, filepath.Join(s.base, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) Browse(_ context.Context, root, dir string) ([]string, error) {
	rel, full, err := s.resolve(root, dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", rel, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, path.Join(rel, e.Name()))
	}
	return files, nil
}

func (s *LocalStorage) CreateDirectory(_ context.Context, root, dir string) error {
	rel, full, err := s.resolve(root, dir)
	if err != nil {
		return err
	}
	if err := os.Mkdir(full, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("directory %s already exists: %w", rel, fs.ErrExist)
		}
		return fmt.Errorf("create directory %s: %w", rel, err)
	}
	return nil
}

func (s *LocalStorage) Upload(_ context.Context, root, dir, name string, data []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: file name %q", ErrInvalidPath, name)
	}
	rel, full, err := s.resolve(root, dir)
	if err != nil {
		return "", err
	}
	if !fsutil.IsDir(full) {
		return "", fmt.Errorf("upload to %s: %w", rel, fs.ErrNotExist)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(full, name), data, 0o644); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return path.Join(rel, name), nil
}
