package file

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
)

// document is the on-disk layout. Endpoints is read for files written by older releases.
type document struct {
	Tokens    []string `json:"tokens"`
	Endpoints []string `json:"endpoints,omitempty"`
}

// Store keeps the endpoint set in a single JSON file, rewritten on every save.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a file store.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("endpoint file store: empty path")
	}
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the set, creating an empty document when the file does not exist.
// An undecodable file is moved aside to <path>.corrupt and the set starts empty.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.write(ctx, []string{}); err != nil {
			return nil, err
		}
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("endpoint file store: read: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return s.resetCorrupt(ctx, err)
	}
	if len(doc.Tokens) == 0 && len(doc.Endpoints) > 0 {
		return doc.Endpoints, nil
	}
	if doc.Tokens == nil {
		return []string{}, nil
	}
	return doc.Tokens, nil
}

func (s *Store) resetCorrupt(ctx context.Context, decodeErr error) ([]string, error) {
	aside := s.path + ".corrupt"
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Warn("endpoint file unreadable, starting empty", "path", s.path, "error", decodeErr, "rename_error", err)
		return []string{}, nil
	}
	s.logger.Warn("endpoint file unreadable, moved aside", "path", s.path, "moved_to", aside, "error", decodeErr)
	if err := s.write(ctx, []string{}); err != nil {
		s.logger.Warn("endpoint file reset failed", "path", s.path, "error", err)
	}
	return []string{}, nil
}

// Save replaces the whole file atomically.
func (s *Store) Save(ctx context.Context, endpoints []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, endpoints)
}

func (s *Store) write(ctx context.Context, endpoints []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if endpoints == nil {
		endpoints = []string{}
	}
	data, err := json.MarshalIndent(document{Tokens: endpoints}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("endpoint file store: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("endpoint file store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("endpoint file store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("endpoint file store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("endpoint file store: rename: %w", err)
	}
	return nil
}
