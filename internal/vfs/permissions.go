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
	"fmt"
	"sort"
	"sync"

	"kernelfs/internal/common"
)

// Operation names a permission bit
type Operation string

const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpExecute Operation = "execute"
)

// ParseOperation validates an operation name
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpRead, OpWrite, OpExecute:
		return Operation(s), nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// PermissionEntry holds the rules stored for one path. A nil field means
// the path has no rule for that operation and lookup continues upward.
type PermissionEntry struct {
	Path    string `json:"path"`
	Read    *bool  `json:"read,omitempty"`
	Write   *bool  `json:"write,omitempty"`
	Execute *bool  `json:"execute,omitempty"`
}

func (e *PermissionEntry) rule(op Operation) *bool {
	switch op {
	case OpRead:
		return e.Read
	case OpWrite:
		return e.Write
	case OpExecute:
		return e.Execute
	}
	return nil
}

func (e *PermissionEntry) setRule(op Operation, allowed bool) {
	v := allowed
	switch op {
	case OpRead:
		e.Read = &v
	case OpWrite:
		e.Write = &v
	case OpExecute:
		e.Execute = &v
	}
}

// defaultRules apply when no ancestor has a rule for the operation
var defaultRules = map[Operation]bool{
	OpRead:    true,
	OpWrite:   false,
	OpExecute: true,
}

// PermissionTable stores per-path rules resolved by closest-ancestor-wins
type PermissionTable struct {
	mu      sync.RWMutex
	entries map[string]*PermissionEntry
}

// NewPermissionTable creates an empty table
func NewPermissionTable() *PermissionTable {
	return &PermissionTable{entries: make(map[string]*PermissionEntry)}
}

// Check walks from p to the root and returns the first rule found for op,
// or the built-in default.
func (t *PermissionTable) Check(p common.Path, op Operation) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, anc := range p.Ancestors() {
		e, ok := t.entries[anc.String()]
		if !ok {
			continue
		}
		if r := e.rule(op); r != nil {
			return *r
		}
	}
	return defaultRules[op]
}

// Set upserts the rule for op at p
func (t *PermissionTable) Set(p common.Path, op Operation, allowed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := p.String()
	e, ok := t.entries[key]
	if !ok {
		e = &PermissionEntry{Path: key}
		t.entries[key] = e
	}
	e.setRule(op, allowed)
}

// Len returns the number of paths with rules
func (t *PermissionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns copies of all entries sorted by path
func (t *PermissionTable) Entries() []PermissionEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]PermissionEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Load replaces all entries. Entries with invalid paths are rejected.
func (t *PermissionTable) Load(entries []PermissionEntry) error {
	next := make(map[string]*PermissionEntry, len(entries))
	for _, e := range entries {
		canonical, err := common.NormalizePath(e.Path)
		if err != nil {
			return fmt.Errorf("%w: permission path %q", common.ErrPersistLoadCorrupt, e.Path)
		}
		c := copyEntry(&e)
		c.Path = canonical
		next[canonical] = &c
	}

	t.mu.Lock()
	t.entries = next
	t.mu.Unlock()
	return nil
}

// Replace swaps in other's rules. Entries in other are already canonical.
func (t *PermissionTable) Replace(other *PermissionTable) {
	other.mu.RLock()
	next := make(map[string]*PermissionEntry, len(other.entries))
	for path, e := range other.entries {
		c := copyEntry(e)
		next[path] = &c
	}
	other.mu.RUnlock()

	t.mu.Lock()
	t.entries = next
	t.mu.Unlock()
}

func copyEntry(e *PermissionEntry) PermissionEntry {
	c := PermissionEntry{Path: e.Path}
	if e.Read != nil {
		v := *e.Read
		c.Read = &v
	}
	if e.Write != nil {
		v := *e.Write
		c.Write = &v
	}
	if e.Execute != nil {
		v := *e.Execute
		c.Execute = &v
	}
	return c
}
