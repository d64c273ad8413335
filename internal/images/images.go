// Package images stores uploaded pictures and hands out the reference that is
// kept on modules, lessons and questions.
package images

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// DefaultReference is used when the uploader skips the photo step.
const DefaultReference = "./img/57fa8b50d6ab7b9f49e84f790d5b4d82.jpg"

// Storage persists image bytes.
type Storage interface {
	// Save stores the image and returns a stable reference to it.
	Save(ctx context.Context, data []byte) (string, error)
	// Default returns the reference substituted for a skipped upload.
	Default() string
}

// LocalStorage writes re-encoded JPEG files under a directory.
type LocalStorage struct {
	dir        string
	defaultRef string
	maxSide    int
}

// NewLocalStorage creates the directory if needed. A maxSide of zero keeps the
// original dimensions.
func NewLocalStorage(dir, defaultRef string, maxSide int) (*LocalStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("images dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	if defaultRef == "" {
		defaultRef = DefaultReference
	}
	return &LocalStorage{dir: dir, defaultRef: defaultRef, maxSide: maxSide}, nil
}

func (s *LocalStorage) Save(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image is empty")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if s.maxSide > 0 {
		b := img.Bounds()
		if b.Dx() > s.maxSide || b.Dy() > s.maxSide {
			img = imaging.Fit(img, s.maxSide, s.maxSide, imaging.Lanczos)
		}
	}

	sub := time.Now().Format("20060102")
	if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
		return "", fmt.Errorf("create images subdir: %w", err)
	}
	path := filepath.Join(s.dir, sub, uuid.NewString()+".jpg")
	if err := imaging.Save(img, path, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return path, nil
}

func (s *LocalStorage) Default() string {
	return s.defaultRef
}

// MemoryStorage keeps images in memory. Used in tests.
type MemoryStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	// FailWith, when set, makes Save return it.
	FailWith error
}

// NewMemoryStorage creates an empty in-memory image store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{files: make(map[string][]byte)}
}

func (s *MemoryStorage) Save(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return "", s.FailWith
	}
	ref := "mem://" + uuid.NewString()
	s.files[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (s *MemoryStorage) Default() string {
	return DefaultReference
}

// Get returns the bytes saved under ref.
func (s *MemoryStorage) Get(ref string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[ref]
	return b, ok
}

// Len returns the number of saved images.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
