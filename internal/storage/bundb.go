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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"kernelfs/internal/util"
)

// SQLiteStore keeps state blobs in a libsql database accessed through Bun.
type SQLiteStore struct {
	path string
	db   *bun.DB
}

// OpenSQLiteStore opens or creates the database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	sqlDB, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := execStatements(sqlDB, stateSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{path: path, db: bun.NewDB(sqlDB, sqlitedialect.New())}
	if err := s.initSchemaInfo(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	log.Debugf("[STORE] opened sqlite store %s", path)
	return s, nil
}

func (s *SQLiteStore) initSchemaInfo(ctx context.Context) error {
	_, err := s.db.NewInsert().
		Model(&SchemaInfoModel{Key: "version", Value: SchemaVersion}).
		On("CONFLICT (key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize schema info: %w", err)
	}
	return nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// SchemaVersion returns the version recorded in schema_info
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (string, error) {
	var info SchemaInfoModel
	err := s.db.NewSelect().Model(&info).Where("key = ?", "version").Scan(ctx)
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// Get returns the value stored under key
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := util.RetryWithResult(ctx, func() (*KVEntryModel, error) {
		var e KVEntryModel
		if err := s.db.NewSelect().Model(&e).Where("key = ?", key).Scan(ctx); err != nil {
			return nil, err
		}
		return &e, nil
	}, util.DatabaseRetryOptions(ctx)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// Put upserts value under key.
// Retries on "database is locked" when another process holds the database.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	model := &KVEntryModel{Key: key, Value: value, UpdatedAt: time.Now().UnixMilli()}
	return util.Retry(ctx, func() error {
		_, err := s.db.NewInsert().
			Model(model).
			On("CONFLICT (key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	}, util.DatabaseRetryOptions(ctx)...)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return util.Retry(ctx, func() error {
		_, err := s.db.NewDelete().
			Model((*KVEntryModel)(nil)).
			Where("key = ?", key).
			Exec(ctx)
		return err
	}, util.DatabaseRetryOptions(ctx)...)
}

// Keys returns every stored key in order
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.NewSelect().
		Model((*KVEntryModel)(nil)).
		Column("key").
		Order("key ASC").
		Scan(ctx, &keys)
	return keys, err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
