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
	"slices"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"kernelfs/internal/common"
)

// MemoryBackend is the sandbox tree: a flat map keyed by canonical path.
// Parents hold their children as a name list; there are no parent back-references.
type MemoryBackend struct {
	mu    sync.RWMutex
	nodes map[string]*VNode
}

// NewMemoryBackend creates a tree holding only the root directory
func NewMemoryBackend(st Stamp) *MemoryBackend {
	m := &MemoryBackend{nodes: make(map[string]*VNode, 64)}
	m.nodes["/"] = newDirNode("/", st)
	return m
}

func newDirNode(path string, st Stamp) *VNode {
	return &VNode{
		Path:       path,
		Kind:       KindDirectory,
		Children:   []string{},
		Owner:      st.Owner,
		CreatedAt:  st.Now,
		ModifiedAt: st.Now,
		AccessedAt: st.Now,
	}
}

// Read returns a copy of the file content at path
func (m *MemoryBackend) Read(_ context.Context, path string, st Stamp) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[path]
	if !ok || node.IsDir() {
		return nil, fmt.Errorf("read %s: %w", path, common.ErrNotFound)
	}
	if !st.Now.IsZero() {
		node.AccessedAt = st.Now
	}
	return append([]byte{}, node.Content...), nil
}

// Write creates or overwrites the file at path
func (m *MemoryBackend) Write(_ context.Context, path string, content []byte, st Stamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.nodes[path]; ok {
		if node.IsDir() {
			return fmt.Errorf("write %s: %w", path, common.ErrIsDir)
		}
		node.Content = append([]byte{}, content...)
		node.Size = int64(len(content))
		node.MimeType = st.MimeType
		node.ModifiedAt = st.Now
		node.AccessedAt = st.Now
		return nil
	}

	parent, err := m.parentDirLocked("write", path)
	if err != nil {
		return err
	}

	name := common.BaseName(path)
	m.nodes[path] = &VNode{
		Path:       path,
		Kind:       KindFile,
		Content:    append([]byte{}, content...),
		Size:       int64(len(content)),
		MimeType:   st.MimeType,
		Owner:      st.Owner,
		CreatedAt:  st.Now,
		ModifiedAt: st.Now,
		AccessedAt: st.Now,
	}
	parent.Children = append(parent.Children, name)
	parent.ModifiedAt = st.Now
	return nil
}

// Mkdir creates an empty directory at path
func (m *MemoryBackend) Mkdir(_ context.Context, path string, st Stamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[path]; ok {
		return fmt.Errorf("mkdir %s: %w", path, common.ErrExists)
	}
	parent, err := m.parentDirLocked("mkdir", path)
	if err != nil {
		return err
	}

	m.nodes[path] = newDirNode(path, st)
	parent.Children = append(parent.Children, common.BaseName(path))
	parent.ModifiedAt = st.Now
	return nil
}

// parentDirLocked returns the parent directory node of path. Caller holds m.mu.
func (m *MemoryBackend) parentDirLocked(op, path string) (*VNode, error) {
	if path == "/" {
		return nil, fmt.Errorf("%s %s: %w", op, path, common.ErrExists)
	}
	parentPath := common.ParentPath(path)
	switch err := m.walkLocked(parentPath); {
	case errors.Is(err, errMissing):
		return nil, fmt.Errorf("%s %s: %w", op, path, common.ErrParentNotFound)
	case errors.Is(err, errNotDirHandle):
		return nil, fmt.Errorf("%s %s: %w", op, path, common.ErrNotDir)
	}
	return m.nodes[parentPath], nil
}

// walkLocked checks dir and each directory above it, root first, stopping at
// the first segment that is absent or a file. Caller holds m.mu.
func (m *MemoryBackend) walkLocked(dir string) error {
	if dir == "/" {
		return nil
	}
	current := ""
	for _, seg := range strings.Split(strings.TrimPrefix(dir, "/"), "/") {
		current += "/" + seg
		node, ok := m.nodes[current]
		if !ok {
			return errMissing
		}
		if !node.IsDir() {
			return errNotDirHandle
		}
	}
	return nil
}

// Remove deletes path. Non-empty directories require recursive.
func (m *MemoryBackend) Remove(_ context.Context, path string, recursive bool, st Stamp, onRemove RemoveFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "/" {
		return fmt.Errorf("remove %s: %w: cannot remove root", path, common.ErrInvalidPath)
	}
	node, ok := m.nodes[path]
	if !ok {
		return fmt.Errorf("remove %s: %w", path, common.ErrNotFound)
	}
	if node.IsDir() && len(node.Children) > 0 && !recursive {
		return fmt.Errorf("remove %s: %w", path, common.ErrNotEmpty)
	}

	m.removeSubtreeLocked(path, onRemove)

	parent := m.nodes[common.ParentPath(path)]
	parent.Children = slices.DeleteFunc(parent.Children, func(n string) bool {
		return n == common.BaseName(path)
	})
	if !st.Now.IsZero() {
		parent.ModifiedAt = st.Now
	}
	return nil
}

// removeSubtreeLocked deletes path and its descendants depth-first
func (m *MemoryBackend) removeSubtreeLocked(path string, onRemove RemoveFunc) {
	node := m.nodes[path]
	if node == nil {
		return
	}
	if node.IsDir() {
		for _, child := range node.Children {
			m.removeSubtreeLocked(common.JoinPath(path, child), onRemove)
		}
	}
	delete(m.nodes, path)
	if onRemove != nil {
		onRemove(path)
	}
}

// List returns the entries of the directory at path, directories first
func (m *MemoryBackend) List(_ context.Context, path string) ([]DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch err := m.walkLocked(path); {
	case errors.Is(err, errMissing):
		return nil, fmt.Errorf("list %s: %w", path, common.ErrNotFound)
	case errors.Is(err, errNotDirHandle):
		return nil, fmt.Errorf("list %s: %w", path, common.ErrNotDir)
	}
	node := m.nodes[path]

	entries := make([]DirEntry, 0, len(node.Children))
	for _, name := range node.Children {
		kind := KindFile
		if child, ok := m.nodes[common.JoinPath(path, name)]; ok {
			kind = child.Kind
		}
		entries = append(entries, DirEntry{Name: name, Kind: kind})
	}
	sortEntries(entries)
	return entries, nil
}

// Stat returns metadata for path
func (m *MemoryBackend) Stat(_ context.Context, path string) (*NodeInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[path]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", path, common.ErrNotFound)
	}
	return &NodeInfo{
		Path:       node.Path,
		Kind:       node.Kind,
		Size:       node.Size,
		MimeType:   node.MimeType,
		Owner:      node.Owner,
		CreatedAt:  node.CreatedAt,
		ModifiedAt: node.ModifiedAt,
		AccessedAt: node.AccessedAt,
	}, nil
}

// Snapshot returns deep copies of every node, sorted by path
func (m *MemoryBackend) Snapshot() []*VNode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*VNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Restore replaces the tree with nodes after checking the tree invariant.
// On error the current tree is left untouched.
func (m *MemoryBackend) Restore(nodes []*VNode) error {
	next := make(map[string]*VNode, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return fmt.Errorf("%w: nil node", common.ErrPersistLoadCorrupt)
		}
		canonical, err := common.NormalizePath(n.Path)
		if err != nil || canonical != n.Path {
			return fmt.Errorf("%w: non-canonical path %q", common.ErrPersistLoadCorrupt, n.Path)
		}
		if _, dup := next[n.Path]; dup {
			return fmt.Errorf("%w: duplicate path %q", common.ErrPersistLoadCorrupt, n.Path)
		}
		next[n.Path] = n.clone()
	}
	if err := validateTree(next); err != nil {
		return err
	}

	m.mu.Lock()
	m.nodes = next
	m.mu.Unlock()
	log.Debugf("[MEM] restored %d nodes", len(next))
	return nil
}

// Validate checks the tree invariant on the live tree
func (m *MemoryBackend) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return validateTree(m.nodes)
}

// validateTree checks that every non-root node is listed by a directory parent
// and that every listed child exists.
func validateTree(nodes map[string]*VNode) error {
	root, ok := nodes["/"]
	if !ok || !root.IsDir() {
		return fmt.Errorf("%w: missing root directory", common.ErrPersistLoadCorrupt)
	}
	for path, n := range nodes {
		switch n.Kind {
		case KindFile:
			if len(n.Children) > 0 {
				return fmt.Errorf("%w: file %q has children", common.ErrPersistLoadCorrupt, path)
			}
		case KindDirectory:
			seen := make(map[string]bool, len(n.Children))
			for _, name := range n.Children {
				if !common.ValidName(name) || seen[name] {
					return fmt.Errorf("%w: bad child %q in %q", common.ErrPersistLoadCorrupt, name, path)
				}
				seen[name] = true
				if _, ok := nodes[common.JoinPath(path, name)]; !ok {
					return fmt.Errorf("%w: orphaned child %q in %q", common.ErrPersistLoadCorrupt, name, path)
				}
			}
		default:
			return fmt.Errorf("%w: unknown kind %q at %q", common.ErrPersistLoadCorrupt, n.Kind, path)
		}
		if path == "/" {
			continue
		}
		parent, ok := nodes[common.ParentPath(path)]
		if !ok || !parent.IsDir() || !slices.Contains(parent.Children, common.BaseName(path)) {
			return fmt.Errorf("%w: %q not listed by its parent", common.ErrPersistLoadCorrupt, path)
		}
	}
	return nil
}

// TreeStats summarizes the sandbox tree
type TreeStats struct {
	Files       int
	Directories int
	TotalSize   int64
}

// Stats counts files, directories and content bytes
func (m *MemoryBackend) Stats() TreeStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s TreeStats
	for _, n := range m.nodes {
		if n.IsDir() {
			s.Directories++
			continue
		}
		s.Files++
		s.TotalSize += n.Size
	}
	return s
}

// sortEntries orders directories first, then by name
func sortEntries(entries []DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == KindDirectory
		}
		return entries[i].Name < entries[j].Name
	})
}

var _ Backend = (*MemoryBackend)(nil)
