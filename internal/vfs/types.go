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
	"time"
)

// Kind is the type of a filesystem entry
type Kind string

const (
	// KindFile is a regular file
	KindFile Kind = "file"
	// KindDirectory is a directory
	KindDirectory Kind = "directory"
)

// VNode is one entry in the sandbox tree.
// Children holds the names of immediate children and is only set for directories.
type VNode struct {
	Path       string    `json:"path"`
	Kind       Kind      `json:"kind"`
	Content    []byte    `json:"content,omitempty"`
	Children   []string  `json:"children,omitempty"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType,omitempty"`
	Owner      string    `json:"owner"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	AccessedAt time.Time `json:"accessedAt"`
}

// IsDir reports whether the node is a directory
func (n *VNode) IsDir() bool {
	return n.Kind == KindDirectory
}

// clone returns a deep copy so callers never alias backend state
func (n *VNode) clone() *VNode {
	c := *n
	if n.Content != nil {
		c.Content = append([]byte(nil), n.Content...)
	}
	if n.Children != nil {
		c.Children = append([]string(nil), n.Children...)
	}
	return &c
}

// DirEntry is one row of a directory listing
type DirEntry struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// NodeInfo is the metadata view of a VNode returned by Stat
type NodeInfo struct {
	Path       string
	Kind       Kind
	Size       int64
	MimeType   string
	Owner      string
	CreatedAt  time.Time
	ModifiedAt time.Time
	AccessedAt time.Time
}

// Stamp carries the facade-owned metadata applied by a mutating backend call.
// Backends never read the clock themselves.
type Stamp struct {
	Now      time.Time
	Owner    string
	MimeType string
}

// RemoveFunc is called once per removed entry, deepest first.
type RemoveFunc func(path string)

// Backend is the storage contract shared by the sandbox tree and the real directory handle.
// Paths are canonical strings produced by common.Normalize.
type Backend interface {
	Read(ctx context.Context, path string, st Stamp) ([]byte, error)
	Write(ctx context.Context, path string, content []byte, st Stamp) error
	Remove(ctx context.Context, path string, recursive bool, st Stamp, onRemove RemoveFunc) error
	List(ctx context.Context, path string) ([]DirEntry, error)
	Mkdir(ctx context.Context, path string, st Stamp) error
	Stat(ctx context.Context, path string) (*NodeInfo, error)
}
