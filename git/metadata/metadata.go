// Package metadata persists per-enlistment key/value metadata such as the
// enlistment id, the on-disk layout version and maintenance bookkeeping.
//
// The store is a single JSON file under <dotScalar>/databases. Every write
// is flushed with a write-to-temp and rename so a crash never leaves a
// partially written file.
package metadata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/2thetop/scalar/errors"
)

const (
	fileVersion = "1"

	// FileName is the store's path relative to the .scalar directory.
	FileName = "databases/repo-metadata.json"
)

// Well-known keys.
const (
	KeyDiskLayoutMajorVersion = "DiskLayoutVersion"
	KeyDiskLayoutMinorVersion = "DiskLayoutMinorVersion"
	KeyEnlistmentID           = "EnlistmentId"
)

type file struct {
	Version string            `json:"version"`
	Entries map[string]string `json:"entries"`
}

// Store is a flushed-on-write key/value store. It is safe for concurrent use.
type Store struct {
	fs     billy.Filesystem
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]string
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open loads the store under dotScalarPath, creating an empty one if the
// file does not exist yet. A corrupt file is an error.
func Open(fs billy.Filesystem, dotScalarPath string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:      fs,
		path:    path.Join(dotScalarPath, FileName),
		logger:  slog.New(slog.DiscardHandler),
		entries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := fs.Stat(s.path); os.IsNotExist(err) {
		return s, nil
	}

	data, err := util.ReadFile(fs, s.path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "failed to read %s", s.path)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "failed to parse %s", s.path)
	}
	if f.Version != fileVersion {
		return nil, errors.Newf(errors.CodeInvalidConfig,
			"unsupported metadata version: %s (expected %s)", f.Version, fileVersion)
	}
	if f.Entries != nil {
		s.entries = f.Entries
	}

	return s, nil
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// Entry returns the value stored under key.
func (s *Store) Entry(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok
}

// SetEntry stores value under key and flushes the store.
func (s *Store) SetEntry(key, value string) error {
	return s.setEntries(map[string]string{key: value})
}

// EnlistmentID returns the enlistment id, creating and persisting a new one
// if none has been recorded.
func (s *Store) EnlistmentID() (string, error) {
	if id, ok := s.Entry(KeyEnlistmentID); ok {
		return id, nil
	}

	id := s.newEnlistmentID()
	if err := s.SetEntry(KeyEnlistmentID, id); err != nil {
		return "", err
	}
	return id, nil
}

// DiskLayoutVersion returns the on-disk layout version recorded at clone
// time. A missing or unparsable minor version reads as zero.
func (s *Store) DiskLayoutVersion() (major, minor int, err error) {
	value, ok := s.Entry(KeyDiskLayoutMajorVersion)
	if !ok {
		return 0, 0, errors.New(errors.CodeNotFound,
			"Enlistment disk layout version not found, check if a breaking change has been made to Scalar since cloning this enlistment.")
	}

	major, err = strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, 0, errors.New(errors.CodeInvalidConfig,
			"Failed to parse persisted disk layout version number: "+value)
	}

	if value, ok := s.Entry(KeyDiskLayoutMinorVersion); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			minor = parsed
		}
	}

	return major, minor, nil
}

// SaveCloneMetadata records the layout version and a fresh enlistment id.
func (s *Store) SaveCloneMetadata(major, minor int) error {
	return s.setEntries(map[string]string{
		KeyDiskLayoutMajorVersion: strconv.Itoa(major),
		KeyDiskLayoutMinorVersion: strconv.Itoa(minor),
		KeyEnlistmentID:           s.newEnlistmentID(),
	})
}

// Close releases the store. Later writes fail; Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) newEnlistmentID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.logger.Info("created enlistment id", "enlistment_id", id)
	return id
}

func (s *Store) setEntries(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New(errors.CodeConflict, "metadata store is closed")
	}

	previous := make(map[string]*string, len(values))
	for k, v := range values {
		if old, ok := s.entries[k]; ok {
			previous[k] = &old
		} else {
			previous[k] = nil
		}
		s.entries[k] = v
	}

	if err := s.flush(); err != nil {
		for k, old := range previous {
			if old == nil {
				delete(s.entries, k)
			} else {
				s.entries[k] = *old
			}
		}
		return err
	}
	return nil
}

// flush writes the store atomically. The caller holds s.mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(file{Version: fileVersion, Entries: s.entries}, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal metadata")
	}

	if err := s.fs.MkdirAll(path.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create metadata directory")
	}

	tmpPath := s.path + ".tmp"
	tmp, err := s.fs.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create temporary metadata file")
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to write temporary metadata file")
	}

	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to close temporary metadata file")
	}

	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("failed to rename %s", tmpPath))
	}

	return nil
}
