// Package registry provides the durable store of capability servers known to toolgate.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/toolgate/toolgate/internal/model"
)

var (
	// ErrConflict is returned when registering an ID that already exists without force.
	ErrConflict = errors.New("a server with this id is already registered")

	// ErrNotFound is returned when the requested server ID is not registered.
	ErrNotFound = errors.New("server not found in registry")
)

// ChangeCallback is invoked after a server is registered, replaced or
// deregistered. The catalog uses it to drop cached schemas for the server.
type ChangeCallback func(serverID string)

// Store is a file-backed registry of ServerRecords. The whole collection is
// persisted as a single JSON document and rewritten atomically
// (write-to-temp-then-rename) on every mutation, so concurrent readers of
// the backing file never observe a torn write.
type Store struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	records map[string]*model.ServerRecord
	// order preserves registration order for List().
	order []string

	onChange ChangeCallback
}

// NewStore creates a Store backed by the given filesystem and file path,
// loading any existing registry contents. A missing file is not an error:
// the store starts empty and the file is created on first write.
func NewStore(fs afero.Fs, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		fs:       fs,
		path:     path,
		logger:   logger,
		records:  make(map[string]*model.ServerRecord),
		onChange: func(string) {},
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load registry file %s: %w", path, err)
	}
	return s, nil
}

// SetChangeCallback registers the callback invoked on register/deregister.
func (s *Store) SetChangeCallback(cb ChangeCallback) {
	if cb == nil {
		cb = func(string) {}
	}
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}

// Register inserts a ServerRecord. If a record with the same ID exists,
// it fails with ErrConflict unless force is set, in which case the record
// is replaced atomically.
func (s *Store) Register(record *model.ServerRecord, force bool) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	prev, exists := s.records[record.ID]
	if exists && !force {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConflict, record.ID)
	}

	s.records[record.ID] = record.Clone()
	if !exists {
		s.order = append(s.order, record.ID)
	}

	if err := s.saveLocked(); err != nil {
		// roll back the in-memory mutation so state stays consistent with disk
		if exists {
			s.records[record.ID] = prev
		} else {
			delete(s.records, record.ID)
			s.order = s.order[:len(s.order)-1]
		}
		s.mu.Unlock()
		return err
	}
	cb := s.onChange
	s.mu.Unlock()

	if exists {
		s.logger.Info("replaced server registration", zap.String("server", record.ID))
	} else {
		s.logger.Info("registered server", zap.String("server", record.ID), zap.String("url", record.URL))
	}
	cb(record.ID)
	return nil
}

// Deregister removes the server with the given ID.
func (s *Store) Deregister(id string) error {
	s.mu.Lock()
	prev, exists := s.records[id]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(s.records, id)
	idx := -1
	for i, existing := range s.order {
		if existing == id {
			idx = i
			break
		}
	}
	s.order = append(s.order[:idx], s.order[idx+1:]...)

	if err := s.saveLocked(); err != nil {
		s.records[id] = prev
		s.order = append(s.order, "")
		copy(s.order[idx+1:], s.order[idx:])
		s.order[idx] = id
		s.mu.Unlock()
		return err
	}
	cb := s.onChange
	s.mu.Unlock()

	s.logger.Info("deregistered server", zap.String("server", id))
	cb(id)
	return nil
}

// Get returns the record for the given server ID.
func (s *Store) Get(id string) (*model.ServerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// List returns all registered servers in stable registration order.
func (s *Store) List() []*model.ServerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*model.ServerRecord, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.records[id].Clone())
	}
	return records
}

// load reads the registry file into memory. The persisted form carries no
// ordering, so records are ordered by registration timestamp (then ID) to
// keep List() stable across restarts.
func (s *Store) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var persisted map[string]*model.ServerRecord
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("registry file is not valid JSON: %w", err)
	}

	for id, record := range persisted {
		record.ID = id
		if err := record.Validate(); err != nil {
			// A bad record shouldn't take down the whole registry.
			s.logger.Warn("skipping invalid registry record", zap.String("server", id), zap.Error(err))
			continue
		}
		s.records[id] = record
		s.order = append(s.order, id)
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		ti := s.records[s.order[i]].RegisteredAt()
		tj := s.records[s.order[j]].RegisteredAt()
		if ti.Equal(tj) {
			return s.order[i] < s.order[j]
		}
		return ti.Before(tj)
	})
	return nil
}

// saveLocked rewrites the registry file. Callers must hold the write lock.
// The document is written to a temp file first and renamed over the target
// so a concurrent reader never sees a partial write.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create registry directory %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}
