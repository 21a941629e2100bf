// Package storage writes converter output files to a destination directory.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrExists is returned when saving over an existing file without overwrite.
var ErrExists = errors.New("file already exists")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Storage defines the interface for output file operations
type Storage interface {
	// Save stores r under name and returns its metadata
	Save(ctx context.Context, name string, r io.Reader) (*FileInfo, error)

	// List returns every stored file, sorted by name
	List(ctx context.Context) ([]*FileInfo, error)
}

// Config holds storage configuration
type Config struct {
	LocalPath string
	// Overwrite allows Save to replace existing files.
	Overwrite bool
}

// New creates a Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	return NewLocalStorage(cfg.LocalPath, cfg.Overwrite)
}
