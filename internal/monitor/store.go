package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/obentoo/storewatch/internal/common/logger"
	"github.com/obentoo/storewatch/internal/version"
)

// Error variables for state persistence errors
var (
	// ErrPersistence wraps every I/O or encoding failure of the state file
	ErrPersistence = errors.New("state persistence failed")
	// ErrStateCorrupted is returned by Load when the state file cannot be parsed
	ErrStateCorrupted = errors.New("state file is corrupted")
)

// Layout selects the on-disk form of the state file.
type Layout int

const (
	// LayoutSingle writes {"version": ..., "last_check": ...}
	LayoutSingle Layout = iota
	// LayoutMulti writes {"versions": {name: ...}, "last_check": ...}
	LayoutMulti
)

// stateFile is the union of both on-disk forms, used for reading.
type stateFile struct {
	Version   *string            `json:"version"`
	Versions  map[string]*string `json:"versions"`
	LastCheck *string            `json:"last_check"`
}

type singleState struct {
	Version   *string `json:"version"`
	LastCheck *string `json:"last_check"`
}

type multiState struct {
	Versions  map[string]*string `json:"versions"`
	LastCheck *string            `json:"last_check"`
}

// Store keeps the last seen version per source and the time of the last
// check, mirrored to a JSON file. A source with no entry has never been
// observed, which is distinct from every version token.
type Store struct {
	path      string
	names     []string
	versions  map[string]string
	lastCheck time.Time
	mu        sync.RWMutex
	nowFunc   func() time.Time
	log       *logger.Logger
}

// StoreOption is a functional option for configuring Store
type StoreOption func(*Store)

// WithStoreNowFunc sets a custom time function for testing
func WithStoreNowFunc(fn func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = fn
	}
}

// WithStoreLogger sets the logger used for load problems
func WithStoreLogger(l *logger.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore creates a store for the given source names and loads the state
// file at path. A missing file starts a fresh state. An unreadable or corrupt
// file is logged and also starts a fresh state, and is overwritten by the
// next Save.
func NewStore(path string, names []string, opts ...StoreOption) *Store {
	s := &Store{
		path:     path,
		names:    append([]string(nil), names...),
		versions: make(map[string]string),
		nowFunc:  time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("ignoring state file %s: %v", path, err)
	}
	return s
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Layout returns the form written by Save: single when exactly one source is tracked.
func (s *Store) Layout() Layout {
	if len(s.names) == 1 {
		return LayoutSingle
	}
	return LayoutMulti
}

// Load replaces the in-memory state with the contents of the state file.
// On any error the in-memory state is left empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions = make(map[string]string)
	s.lastCheck = time.Time{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}

	if sf.Versions != nil {
		for name, v := range sf.Versions {
			s.setLoaded(name, v)
		}
	} else if len(s.names) > 0 {
		s.setLoaded(s.names[0], sf.Version)
	}

	if sf.LastCheck != nil {
		ts, err := time.Parse(time.RFC3339Nano, *sf.LastCheck)
		if err != nil {
			s.log.Warn("ignoring invalid last_check %q in %s", *sf.LastCheck, s.path)
		} else {
			s.lastCheck = ts
		}
	}
	return nil
}

// setLoaded stores a version read from disk, dropping values that are not tokens.
// Caller must hold the write lock.
func (s *Store) setLoaded(name string, v *string) {
	if v == nil {
		return
	}
	if !version.Valid(*v) {
		s.log.Warn("ignoring invalid stored version %q for %s", *v, name)
		return
	}
	s.versions[name] = *v
}

// Version returns the stored version of a source and whether one exists
func (s *Store) Version(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[name]
	return v, ok
}

// LastCheck returns the time of the last recorded check and whether one exists
func (s *Store) LastCheck() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheck, !s.lastCheck.IsZero()
}

// Record stores a version for a source and stamps the check time.
// It does not write the file.
func (s *Store) Record(name, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions[name] = v
	s.lastCheck = s.nowFunc().UTC()
}

// Touch stamps the check time without changing any version
func (s *Store) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheck = s.nowFunc().UTC()
}

// Snapshot returns a copy of the stored versions keyed by source name
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.versions))
	for k, v := range s.versions {
		out[k] = v
	}
	return out
}

// Save writes the state file through a temp file and a rename.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := s.marshalUnsafe()
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: failed to marshal state: %v", ErrPersistence, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create state directory: %w", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrPersistence, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to write state file: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to write state file: %w", ErrPersistence, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to rename state file: %w", ErrPersistence, err)
	}
	return nil
}

// marshalUnsafe encodes the state in the store's layout.
// Caller must hold at least the read lock.
func (s *Store) marshalUnsafe() ([]byte, error) {
	var lastCheck *string
	if !s.lastCheck.IsZero() {
		ts := s.lastCheck.UTC().Format(time.RFC3339Nano)
		lastCheck = &ts
	}

	if s.Layout() == LayoutSingle {
		st := singleState{LastCheck: lastCheck}
		if v, ok := s.versions[s.names[0]]; ok {
			st.Version = &v
		}
		return json.MarshalIndent(st, "", "  ")
	}

	st := multiState{Versions: make(map[string]*string), LastCheck: lastCheck}
	for _, name := range s.allNamesUnsafe() {
		if v, ok := s.versions[name]; ok {
			st.Versions[name] = &v
		} else {
			st.Versions[name] = nil
		}
	}
	return json.MarshalIndent(st, "", "  ")
}

// allNamesUnsafe returns configured names plus any extra names read from disk.
func (s *Store) allNamesUnsafe() []string {
	seen := make(map[string]bool, len(s.names))
	names := append([]string(nil), s.names...)
	for _, n := range s.names {
		seen[n] = true
	}
	var extra []string
	for n := range s.versions {
		if !seen[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Delete clears the in-memory state and removes the state file.
// A file that does not exist is not an error.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions = make(map[string]string)
	s.lastCheck = time.Time{}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to remove state file: %w", ErrPersistence, err)
	}
	return nil
}
