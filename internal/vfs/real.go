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

package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	log "github.com/sirupsen/logrus"

	"kernelfs/internal/cache"
	"kernelfs/internal/common"
)

// handleCacheMaxEntries caps the number of cached directory handles.
const handleCacheMaxEntries = 4096

// RealBackend serves the VFS contract from an externally granted directory handle.
// Every path is resolved one segment at a time by chrooting into each directory;
// nothing outside the granted handle is reachable.
type RealBackend struct {
	root    billy.Filesystem
	handles *cache.HandleCache
	filter  ListingFilter
}

// NewRealBackend wraps a granted handle. The backend borrows root and never closes it.
// handleTTL bounds how long resolved directory handles are reused (0 disables expiry).
func NewRealBackend(root billy.Filesystem, handleTTL time.Duration, filter ListingFilter) *RealBackend {
	return &RealBackend{
		root:    root,
		handles: cache.NewHandleCache(handleTTL, handleCacheMaxEntries),
		filter:  filter,
	}
}

// Root returns the underlying handle's root description
func (r *RealBackend) Root() string {
	return r.root.Root()
}

// errMissing and errNotDirHandle report traversal outcomes in both backends;
// callers map them onto the operation's contract error.
var (
	errMissing      = errors.New("segment missing")
	errNotDirHandle = errors.New("segment is not a directory")
)

// dirHandle resolves the directory at segments, chrooting one segment at a time.
func (r *RealBackend) dirHandle(ctx context.Context, segments []string) (billy.Filesystem, error) {
	current := r.root
	key := ""
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key += "/" + seg
		if cached := r.handles.Get(key); cached != nil {
			current = cached
			continue
		}

		info, err := current.Stat(seg)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errMissing
			}
			return nil, err
		}
		if !info.IsDir() {
			return nil, errNotDirHandle
		}
		next, err := current.Chroot(seg)
		if err != nil {
			return nil, err
		}
		r.handles.Set(key, next)
		current = next
	}
	return current, nil
}

// parentHandle resolves the parent directory of path and returns it with the final name.
// missingErr is returned (wrapped) when an ancestor is absent or not a directory.
func (r *RealBackend) parentHandle(ctx context.Context, op, path string, missingErr, notDirErr error) (billy.Filesystem, string, error) {
	p, err := common.Normalize(path)
	if err != nil {
		return nil, "", err
	}
	segs := p.Segments()
	dir, err := r.dirHandle(ctx, segs[:len(segs)-1])
	switch {
	case errors.Is(err, errMissing):
		return nil, "", fmt.Errorf("%s %s: %w", op, path, missingErr)
	case errors.Is(err, errNotDirHandle):
		return nil, "", fmt.Errorf("%s %s: %w", op, path, notDirErr)
	case err != nil:
		return nil, "", common.NewBackendError(op, path, err)
	}
	return dir, p.Base(), nil
}

// Read returns the content of the file at path
func (r *RealBackend) Read(ctx context.Context, path string, _ Stamp) ([]byte, error) {
	if path == "/" {
		return nil, fmt.Errorf("read %s: %w", path, common.ErrNotFound)
	}
	dir, name, err := r.parentHandle(ctx, "read", path, common.ErrNotFound, common.ErrNotFound)
	if err != nil {
		return nil, err
	}

	info, err := dir.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, common.ErrNotFound)
		}
		return nil, common.NewBackendError("read", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read %s: %w", path, common.ErrNotFound)
	}

	data, err := util.ReadFile(dir, name)
	if err != nil {
		return nil, common.NewBackendError("read", path, err)
	}
	return data, nil
}

// Write creates or truncates the file at path. The parent directory must exist.
func (r *RealBackend) Write(ctx context.Context, path string, content []byte, st Stamp) error {
	if path == "/" {
		return fmt.Errorf("write %s: %w", path, common.ErrIsDir)
	}
	dir, name, err := r.parentHandle(ctx, "write", path, common.ErrParentNotFound, common.ErrNotDir)
	if err != nil {
		return err
	}

	info, err := dir.Stat(name)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("write %s: %w", path, common.ErrIsDir)
	case err != nil && !os.IsNotExist(err):
		return common.NewBackendError("write", path, err)
	}

	f, err := dir.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return common.NewBackendError("write", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return common.NewBackendError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return common.NewBackendError("write", path, err)
	}

	r.applyStamp(dir, name, st)
	return nil
}

// applyStamp sets the facade's timestamps on the host entry when the handle supports it.
func (r *RealBackend) applyStamp(dir billy.Filesystem, name string, st Stamp) {
	if st.Now.IsZero() {
		return
	}
	ch, ok := dir.(billy.Change)
	if !ok {
		return
	}
	if err := ch.Chtimes(name, st.Now, st.Now); err != nil {
		log.Debugf("[REAL] chtimes %s: %v", name, err)
	}
}

// Mkdir creates a single directory. The parent directory must exist.
func (r *RealBackend) Mkdir(ctx context.Context, path string, st Stamp) error {
	if path == "/" {
		return fmt.Errorf("mkdir %s: %w", path, common.ErrExists)
	}
	dir, name, err := r.parentHandle(ctx, "mkdir", path, common.ErrParentNotFound, common.ErrNotDir)
	if err != nil {
		return err
	}

	if _, err := dir.Stat(name); err == nil {
		return fmt.Errorf("mkdir %s: %w", path, common.ErrExists)
	} else if !os.IsNotExist(err) {
		return common.NewBackendError("mkdir", path, err)
	}

	if err := dir.MkdirAll(name, 0755); err != nil {
		return common.NewBackendError("mkdir", path, err)
	}
	r.applyStamp(dir, name, st)
	return nil
}

// Remove deletes path. Non-empty directories require recursive.
func (r *RealBackend) Remove(ctx context.Context, path string, recursive bool, _ Stamp, onRemove RemoveFunc) error {
	if path == "/" {
		return fmt.Errorf("remove %s: %w: cannot remove root", path, common.ErrInvalidPath)
	}
	dir, name, err := r.parentHandle(ctx, "remove", path, common.ErrNotFound, common.ErrNotFound)
	if err != nil {
		return err
	}

	info, err := dir.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, common.ErrNotFound)
		}
		return common.NewBackendError("remove", path, err)
	}

	if info.IsDir() {
		children, err := dir.ReadDir(name)
		if err != nil {
			return common.NewBackendError("remove", path, err)
		}
		if len(children) > 0 && !recursive {
			return fmt.Errorf("remove %s: %w", path, common.ErrNotEmpty)
		}
	}

	defer r.handles.InvalidateTree(path)
	if err := r.removeEntry(ctx, dir, name, path, info.IsDir(), onRemove); err != nil {
		return common.NewBackendError("remove", path, err)
	}
	return nil
}

// removeEntry deletes name from dir, descending into directories depth-first.
func (r *RealBackend) removeEntry(ctx context.Context, dir billy.Filesystem, name, vpath string, isDir bool, onRemove RemoveFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if isDir {
		sub, err := dir.Chroot(name)
		if err != nil {
			return err
		}
		children, err := sub.ReadDir(".")
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := r.removeEntry(ctx, sub, child.Name(), common.JoinPath(vpath, child.Name()), child.IsDir(), onRemove); err != nil {
				return err
			}
		}
	}
	if err := dir.Remove(name); err != nil {
		return err
	}
	if onRemove != nil {
		onRemove(vpath)
	}
	return nil
}

// List returns the entries of the directory at path, directories first
func (r *RealBackend) List(ctx context.Context, path string) ([]DirEntry, error) {
	p, err := common.Normalize(path)
	if err != nil {
		return nil, err
	}
	dir, err := r.dirHandle(ctx, p.Segments())
	switch {
	case errors.Is(err, errMissing):
		return nil, fmt.Errorf("list %s: %w", path, common.ErrNotFound)
	case errors.Is(err, errNotDirHandle):
		return nil, fmt.Errorf("list %s: %w", path, common.ErrNotDir)
	case err != nil:
		return nil, common.NewBackendError("list", path, err)
	}

	infos, err := dir.ReadDir(".")
	if err != nil {
		return nil, common.NewBackendError("list", path, err)
	}

	relDir := strings.TrimPrefix(p.String(), "/")
	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		if r.filter != nil {
			rel := info.Name()
			if relDir != "" {
				rel = relDir + "/" + rel
			}
			if !r.filter(rel, info.IsDir()) {
				continue
			}
		}
		kind := KindFile
		if info.IsDir() {
			kind = KindDirectory
		}
		entries = append(entries, DirEntry{Name: info.Name(), Kind: kind})
	}
	sortEntries(entries)
	return entries, nil
}

// Stat returns metadata for path. Timestamps come from the host entry.
func (r *RealBackend) Stat(ctx context.Context, path string) (*NodeInfo, error) {
	if path == "/" {
		return &NodeInfo{Path: "/", Kind: KindDirectory}, nil
	}
	dir, name, err := r.parentHandle(ctx, "stat", path, common.ErrNotFound, common.ErrNotFound)
	if err != nil {
		return nil, err
	}
	info, err := dir.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", path, common.ErrNotFound)
		}
		return nil, common.NewBackendError("stat", path, err)
	}

	ni := &NodeInfo{
		Path:       path,
		Kind:       KindFile,
		Size:       info.Size(),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		AccessedAt: info.ModTime(),
	}
	if info.IsDir() {
		ni.Kind = KindDirectory
		ni.Size = 0
		return ni, nil
	}
	ni.MimeType = detectHostMime(dir, name)
	return ni, nil
}

// detectHostMime sniffs the leading bytes of a host file.
func detectHostMime(dir billy.Filesystem, name string) string {
	f, err := dir.Open(name)
	if err != nil {
		return ""
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(io.LimitReader(f, 3072))
	if err != nil {
		return ""
	}
	return mt.String()
}

var _ Backend = (*RealBackend)(nil)
