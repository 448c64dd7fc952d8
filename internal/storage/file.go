package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"kernelfs/internal/util"
)

const (
	fileStoreExt      = ".kv"
	fileStoreLockName = ".lock"
	lockRetryDelay    = 20 * time.Millisecond
)

// FileStore keeps one file per key in a directory.
// A flock on dir/.lock serializes writers across processes; mu does the
// same for goroutines sharing one store.
type FileStore struct {
	mu   sync.Mutex
	dir  string
	lock *flock.Flock
}

// NewFileStore creates dir if needed and returns a store rooted there
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, fileStoreLockName)),
	}, nil
}

func (s *FileStore) keyPath(key string) string {
	return filepath.Join(s.dir, key+fileStoreExt)
}

// Get reads the value under key holding a shared lock
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.keyPath(key))
	if os.IsNotExist(err) {
		return nil, notFound(key)
	}
	return data, err
}

// Put writes value atomically (temp file + rename) holding an exclusive lock
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer s.lock.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	err = util.Retry(ctx, func() error {
		return os.Rename(tmp.Name(), s.keyPath(key))
	}, util.FileRetryOptions(ctx)...)
	if err != nil {
		return err
	}
	log.Debugf("[STORE] wrote %s (%d bytes)", key, len(value))
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys lists stored keys in order
func (s *FileStore) Keys(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileStoreExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), fileStoreExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the lock handle
func (s *FileStore) Close() error {
	return s.lock.Close()
}

var _ Store = (*FileStore)(nil)
