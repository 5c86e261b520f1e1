package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// SaveInterval is how often the background writer compares and persists the configuration
const SaveInterval = 15 * time.Second

// Store owns the process-wide configuration and its file.
type Store struct {
	fs   afero.Fs
	path string

	mu  sync.RWMutex
	cfg *Config

	// saveMu makes a save a critical section; lastSaved is only touched under it.
	saveMu    sync.Mutex
	lastSaved []byte
}

// Load reads and parses the configuration file at path.
func Load(fs afero.Fs, path string) (*Store, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return NewStore(fs, path, cfg)
}

// NewStore wraps cfg. The current serialization counts as already saved.
func NewStore(fs afero.Fs, path string, cfg *Config) (*Store, error) {
	data, err := Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{fs: fs, path: path, cfg: cfg, lastSaved: data}, nil
}

// Path returns the file the store persists to
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current configuration
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to the live configuration
func (s *Store) Update(fn func(c *Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
}

// Marshal serializes the live configuration
func (s *Store) Marshal() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Marshal(s.cfg)
}

// LastSaved returns the last serialization that reached the file
func (s *Store) LastSaved() []byte {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return bytes.Clone(s.lastSaved)
}

// Save writes the current configuration unconditionally.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := s.Marshal()
	if err != nil {
		return err
	}
	return s.write(data)
}

// SaveIfChanged writes the configuration only when it differs from the last save.
func (s *Store) SaveIfChanged() (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := s.Marshal()
	if err != nil {
		return false, err
	}
	if bytes.Equal(data, s.lastSaved) {
		return false, nil
	}
	if err := s.write(data); err != nil {
		return false, err
	}
	return true, nil
}

// Run saves changes every interval until ctx is done or a save fails.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			saved, err := s.SaveIfChanged()
			if err != nil {
				logger.Error(fmt.Sprintf("Error saving config: %v", err), "Config")
				return err
			}
			if saved {
				logger.Debug("Config saved", "Config")
			}
		}
	}
}

// write replaces the file through a synced temp file and a rename.
// Must be called with saveMu held.
func (s *Store) write(data []byte) (err error) {
	tmp := s.path + ".tmp"

	defer func() {
		if err != nil {
			if rmErr := s.fs.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warn(fmt.Sprintf("Could not remove %s: %v", tmp, rmErr), "Config")
			}
		}
	}()

	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	s.syncDir()
	s.lastSaved = data
	return nil
}

// syncDir flushes the rename to disk where the filesystem supports it.
func (s *Store) syncDir() {
	dir, err := s.fs.Open(filepath.Dir(s.path))
	if err != nil {
		return
	}
	defer dir.Close()
	_ = dir.Sync()
}
