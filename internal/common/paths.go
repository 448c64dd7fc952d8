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

package common

import (
	"fmt"
	"strings"
)

// Path is a canonical absolute VFS path held as ordered segments.
// The zero value is the root.
type Path struct {
	segments []string
}

// Root is the path "/".
var Root = Path{}

// Normalize parses an absolute path into its segments.
// A single trailing slash is accepted ("/a/" is "/a"). Empty input, relative paths,
// empty segments ("/a//b") and dot segments are rejected with ErrInvalidPath.
func Normalize(p string) (Path, error) {
	if p == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !strings.HasPrefix(p, "/") {
		return Path{}, fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, p)
	}
	if p == "/" {
		return Root, nil
	}

	trimmed := strings.TrimPrefix(p, "/")
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return Path{}, fmt.Errorf("%w: %q has empty segments", ErrInvalidPath, p)
	}

	parts := strings.Split(trimmed, "/")
	for _, part := range parts {
		switch part {
		case "":
			return Path{}, fmt.Errorf("%w: %q has empty segments", ErrInvalidPath, p)
		case ".", "..":
			return Path{}, fmt.Errorf("%w: %q has dot segments", ErrInvalidPath, p)
		}
		if strings.ContainsRune(part, 0) {
			return Path{}, fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, p)
		}
	}
	return Path{segments: parts}, nil
}

// MustNormalize is Normalize for literals known to be valid.
func MustNormalize(p string) Path {
	np, err := Normalize(p)
	if err != nil {
		panic(err)
	}
	return np
}

// NormalizePath returns the canonical string form of p.
func NormalizePath(p string) (string, error) {
	np, err := Normalize(p)
	if err != nil {
		return "", err
	}
	return np.String(), nil
}

// String returns the canonical form: "/" for root, "/a/b" otherwise.
func (p Path) String() string {
	if len(p.segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.segments, "/")
}

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Depth is the number of segments.
func (p Path) Depth() int {
	return len(p.segments)
}

// IsRoot reports whether p is "/".
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Base returns the final segment, or "" for root.
func (p Path) Base() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Parent returns the parent directory. The parent of root is root.
func (p Path) Parent() Path {
	if len(p.segments) <= 1 {
		return Root
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Child appends a single name to p. The name is not validated here.
func (p Path) Child(name string) Path {
	segs := make([]string, len(p.segments)+1)
	copy(segs, p.segments)
	segs[len(p.segments)] = name
	return Path{segments: segs}
}

// Ancestors returns p and each ancestor up to and including root, closest first.
func (p Path) Ancestors() []Path {
	out := make([]Path, 0, len(p.segments)+1)
	for i := len(p.segments); i > 0; i-- {
		out = append(out, Path{segments: p.segments[:i]})
	}
	out = append(out, Root)
	return out
}

// HasPrefix reports whether p equals dir or lies beneath it.
func (p Path) HasPrefix(dir Path) bool {
	if len(dir.segments) > len(p.segments) {
		return false
	}
	for i, s := range dir.segments {
		if p.segments[i] != s {
			return false
		}
	}
	return true
}

// Equal compares two paths segment by segment.
func (p Path) Equal(other Path) bool {
	return len(p.segments) == len(other.segments) && p.HasPrefix(other)
}

// ValidName reports whether name can be used as a single path segment.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsRune(name, '/') && !strings.ContainsRune(name, 0)
}

// ParentPath returns the canonical parent of an already-canonical path string.
func ParentPath(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// BaseName returns the final segment of an already-canonical path string.
func BaseName(p string) string {
	if p == "/" {
		return ""
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// JoinPath joins a canonical directory path and a child name.
func JoinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
