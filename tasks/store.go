package tasks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Store persists the whole board as one value
type Store interface {
	Load(ctx context.Context) (Board, error)
	Save(ctx context.Context, board Board) error
	Close() error
}

// Store operations reported by OpError
const (
	OpRead  = "read"
	OpWrite = "write"
)

// OpError reports a failed Load or Save
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("task store %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// FileStore keeps the board as pretty-printed JSON in a single file
type FileStore struct {
	fs   afero.Fs
	path string

	mu         sync.Mutex
	lastDigest [sha256.Size]byte
}

// NewFileStore creates a store for path on the given filesystem
func NewFileStore(fsys afero.Fs, path string) *FileStore {
	return &FileStore{fs: fsys, path: filepath.Clean(path)}
}

// Path returns the board file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the board; a missing or empty file is an empty board
func (s *FileStore) Load(_ context.Context) (Board, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewBoard(), nil
	}
	if err != nil {
		return Board{}, err
	}
	return decodeBoard(data)
}

// Save writes the board to a temp file and renames it into place
func (s *FileStore) Save(_ context.Context, board Board) error {
	data, err := encodeBoard(board)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace task file: %w", err)
	}

	s.mu.Lock()
	s.lastDigest = sha256.Sum256(data)
	s.mu.Unlock()
	return nil
}

// MatchesLastSave reports whether the file on disk is exactly what this
// store last wrote. The watcher uses it to skip its own writes.
func (s *FileStore) MatchesLastSave() bool {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sha256.Sum256(data) == s.lastDigest
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

func decodeBoard(data []byte) (Board, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewBoard(), nil
	}
	var board Board
	if err := json.Unmarshal(data, &board); err != nil {
		return Board{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	board.normalize()
	return board, nil
}

func encodeBoard(board Board) ([]byte, error) {
	board.normalize()
	data, err := json.MarshalIndent(board, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
