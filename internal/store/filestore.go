package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/specdrive/specdrive/internal/errors"
)

// journalFileName is the append-only record of writes and their reasons.
const journalFileName = "journal.log"

// FileStore is a file-based implementation of Store. Each key maps to a
// file within a base directory; values are written atomically via a
// temp-file rename so a crash never leaves a partially-written record.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a FileStore rooted at baseDir, creating the
// directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.NewStateError("failed to create store directory", err).WithBackend("file")
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Save persists data with the given key using an atomic write, then
// journals the reason.
func (fs *FileStore) Save(ctx context.Context, key string, data []byte, reason string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewStateError("failed to create directory", err).WithKey(key).WithBackend("file")
	}

	if err := atomicWriteFile(path, data, 0644); err != nil {
		return errors.NewStateError("failed to write value", err).WithKey(key).WithBackend("file")
	}
	return fs.journal(key, reason)
}

// SaveIfNotExists saves data only if the key does not already exist.
func (fs *FileStore) SaveIfNotExists(ctx context.Context, key string, data []byte, reason string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewStateError("failed to create directory", err).WithKey(key).WithBackend("file")
	}

	// O_EXCL fails if the file already exists.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrAlreadyExists
		}
		return errors.NewStateError("failed to create value", err).WithKey(key).WithBackend("file")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(path) // Clean up on failure
		return errors.NewStateError("failed to write value", err).WithKey(key).WithBackend("file")
	}
	return fs.journal(key, reason)
}

// Load retrieves the data for key.
func (fs *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.NewStateError("failed to read value", err).WithKey(key).WithBackend("file")
	}
	return data, nil
}

// Exists checks whether key exists without loading its data.
func (fs *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(fs.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewStateError("failed to stat value", err).WithKey(key).WithBackend("file")
	}
	return true, nil
}

// List returns all keys with the given prefix.
func (fs *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var keys []string
	err := filepath.Walk(fs.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fs.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if key == journalFileName {
			return nil
		}
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStateError("failed to list keys", err).WithBackend("file")
	}
	return keys, nil
}

// Delete removes the data for key.
func (fs *FileStore) Delete(ctx context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.keyToPath(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return errors.NewStateError("failed to delete value", err).WithKey(key).WithBackend("file")
	}
	return nil
}

// Close is a no-op for the file backend.
func (fs *FileStore) Close() error { return nil }

// journal appends a single write record. Journal failures are not fatal to
// the write itself; the value is already durable.
func (fs *FileStore) journal(key, reason string) error {
	line := fmt.Sprintf("%s\t%s\t%s\n", time.Now().UTC().Format(time.RFC3339), key, reason)
	f, err := os.OpenFile(filepath.Join(fs.baseDir, journalFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	defer f.Close()
	_, _ = f.WriteString(line)
	return nil
}

// keyToPath converts a key to a filesystem path.
func (fs *FileStore) keyToPath(key string) string {
	return filepath.Join(fs.baseDir, filepath.FromSlash(key))
}

// atomicWriteFile writes data to a file atomically by writing to a
// temporary file first, then renaming.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
