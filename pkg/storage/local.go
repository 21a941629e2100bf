package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	basePath  string
	overwrite bool
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string, overwrite bool) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "."
	}
	// Ensure base path exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath, overwrite: overwrite}, nil
}

// Save writes r to a temporary file and renames it into place, so readers
// never see a partial file.
func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	safeName := sanitizeFilename(name)
	if safeName == "" {
		return nil, fmt.Errorf("invalid file name %q", name)
	}
	filePath := filepath.Join(s.basePath, safeName)
	if !s.overwrite {
		if _, err := os.Stat(filePath); err == nil {
			return nil, fmt.Errorf("%s: %w", filePath, ErrExists)
		}
	}

	tmp, err := os.CreateTemp(s.basePath, ".partial-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return s.info(safeName, size)
}

// List returns every stored file, sorted by name
func (s *LocalStorage) List(ctx context.Context) ([]*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, &FileInfo{
			Name:      entry.Name(),
			Size:      fi.Size(),
			Path:      filepath.Join(s.basePath, entry.Name()),
			CreatedAt: fi.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *LocalStorage) info(name string, size int64) (*FileInfo, error) {
	path := filepath.Join(s.basePath, name)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &FileInfo{Name: name, Size: size, Path: path, CreatedAt: fi.ModTime()}, nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	// Replace path separators and other dangerous characters
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
