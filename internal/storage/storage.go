package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store accepts an uploaded image and returns a retrievable path or URL.
type Store interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// DiskStore writes uploads under Dir and serves them under BasePath.
type DiskStore struct {
	Dir      string
	BasePath string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{Dir: dir, BasePath: "/uploads"}, nil
}

func (s *DiskStore) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	filename := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitize(name))

	f, err := os.Create(filepath.Join(s.Dir, filename))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return s.BasePath + "/" + filename, nil
}

// sanitize keeps the original file name recognizable while stripping path
// separators and other awkward characters.
func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
