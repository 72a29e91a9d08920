package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DirSource replays image files from a directory in name order, looping at the end.
type DirSource struct {
	mu    sync.Mutex
	files []string
	next  int
}

// NewDirSource lists the images in dir.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrCameraUnavailable, dir)
	}
	sort.Strings(files)

	return &DirSource{files: files}, nil
}

// Frame returns the next image.
func (s *DirSource) Frame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err //nolint:wrapcheck // context errors pass through
	}

	s.mu.Lock()
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the configured directory
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read frame %s: %w", path, err)
	}
	return decodeFrame(data), nil
}

// Len returns the number of images in the rotation.
func (s *DirSource) Len() int {
	return len(s.files)
}
