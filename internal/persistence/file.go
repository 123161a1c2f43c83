package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"synthbot/internal/types"
)

// FileStore implements Store on a single JSON document, one entry per
// system id. Every mutation rewrites the document via a temporary file and
// an atomic rename, so a crash mid-write never corrupts the previously
// committed state.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	positions map[string]types.SystemPosition
}

// NewFileStore loads the last committed document from path, or starts empty
// when the file is missing. An unreadable or corrupt file is treated as no
// prior state, not as a fatal error.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		path:      path,
		logger:    logger,
		positions: make(map[string]types.SystemPosition),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run.
	case err != nil:
		logger.Warn("position file unreadable, starting empty", "path", path, "err", err)
	default:
		if err := json.Unmarshal(data, &s.positions); err != nil {
			logger.Warn("position file corrupt, starting empty", "path", path, "err", err)
			s.positions = make(map[string]types.SystemPosition)
		}
	}

	return s, nil
}

// Get returns the position for a system id.
func (s *FileStore) Get(ctx context.Context, systemID string) (*types.SystemPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[systemID]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

// Put stores or replaces the position for a system id.
func (s *FileStore) Put(ctx context.Context, pos types.SystemPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.positions[pos.SystemID]
	s.positions[pos.SystemID] = pos

	if err := s.commit(); err != nil {
		if existed {
			s.positions[pos.SystemID] = prev
		} else {
			delete(s.positions, pos.SystemID)
		}
		return err
	}
	return nil
}

// PutIfAbsent stores the position only when its system id is unoccupied.
func (s *FileStore) PutIfAbsent(ctx context.Context, pos types.SystemPosition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[pos.SystemID]; exists {
		return false, nil
	}

	s.positions[pos.SystemID] = pos
	if err := s.commit(); err != nil {
		delete(s.positions, pos.SystemID)
		return false, err
	}
	return true, nil
}

// Delete removes the position for a system id.
func (s *FileStore) Delete(ctx context.Context, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.positions[systemID]
	if !existed {
		return nil
	}

	delete(s.positions, systemID)
	if err := s.commit(); err != nil {
		s.positions[systemID] = prev
		return err
	}
	return nil
}

// All returns a copy of every stored position.
func (s *FileStore) All(ctx context.Context) (map[string]types.SystemPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.SystemPosition, len(s.positions))
	for id, pos := range s.positions {
		out[id] = pos
	}
	return out, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }

// commit writes the in-memory document to a temp file and renames it over
// the committed one. Caller must hold the write lock.
func (s *FileStore) commit() error {
	data, err := json.MarshalIndent(s.positions, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", types.ErrStatePersistence, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".positions-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", types.ErrStatePersistence, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp: %v", types.ErrStatePersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: sync temp: %v", types.ErrStatePersistence, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp: %v", types.ErrStatePersistence, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", types.ErrStatePersistence, err)
	}
	return nil
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)
