// Copyright 2024 KernelFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides the durable key/value stores that hold serialized
// file system state between runs.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"kernelfs/internal/common"
)

// Store is a durable key/value store.
// Get returns an error wrapping common.ErrNotFound when key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// SQLiteFileName is the database file created under the state directory
const SQLiteFileName = "state.db"

// Open creates the store named by backend rooted at dir
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQLiteStore(filepath.Join(dir, SQLiteFileName))
	case BackendFile:
		return NewFileStore(dir)
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", backend)
}

func notFound(key string) error {
	return fmt.Errorf("key %q: %w", key, common.ErrNotFound)
}

func validKey(key string) error {
	if !common.ValidName(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
