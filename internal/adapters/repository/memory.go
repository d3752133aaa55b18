package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/pkg/metrics"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	dirs map[string]map[string]model.UploadedImage // dir -> name -> image
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dirs: make(map[string]map[string]model.UploadedImage)}
}

// AddDir records dir and all of its ancestors.
func (s *MemoryStore) AddDir(_ context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range Ancestors(dir) {
		if _, ok := s.dirs[d]; !ok {
			s.dirs[d] = make(map[string]model.UploadedImage)
		}
	}
	metrics.UpdateStoredDirs(len(s.dirs))
	return nil
}

// AddImage stores img under its dir, replacing an entry with the same name.
func (s *MemoryStore) AddImage(ctx context.Context, img model.UploadedImage) error {
	dir := NormalizeDir(img.Dir)
	if err := s.AddDir(ctx, dir); err != nil {
		return err
	}

	s.mu.Lock()
	s.dirs[dir][img.Name] = img
	count := s.countLocked()
	s.mu.Unlock()

	metrics.UpdateStoredImages(count)
	return nil
}

// List returns the images of dir sorted by name.
func (s *MemoryStore) List(_ context.Context, dir string) ([]model.UploadedImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	images, ok := s.dirs[NormalizeDir(dir)]
	if !ok {
		return nil, ErrDirNotFound
	}
	out := make([]model.UploadedImage, 0, len(images))
	for _, img := range images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Dirs returns every known directory in lexical order.
func (s *MemoryStore) Dirs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.dirs))
	for d := range s.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of stored images.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked()
}

func (s *MemoryStore) countLocked() int {
	n := 0
	for _, images := range s.dirs {
		n += len(images)
	}
	return n
}
