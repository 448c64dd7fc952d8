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
	"fmt"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"kernelfs/internal/common"
)

// HandleProvider grants a scoped read/write directory capability.
// Acquire fails with common.ErrMountNotSupported, common.ErrMountDenied, or any other error.
type HandleProvider interface {
	Acquire(ctx context.Context) (billy.Filesystem, error)
}

// ProviderFunc adapts a function to HandleProvider
type ProviderFunc func(ctx context.Context) (billy.Filesystem, error)

func (f ProviderFunc) Acquire(ctx context.Context) (billy.Filesystem, error) { return f(ctx) }

// StaticProvider always grants the same handle
type StaticProvider struct {
	FS billy.Filesystem
}

func (p StaticProvider) Acquire(ctx context.Context) (billy.Filesystem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.FS == nil {
		return nil, common.ErrMountNotSupported
	}
	return p.FS, nil
}

// UnsupportedProvider models an environment without directory access
type UnsupportedProvider struct{}

func (UnsupportedProvider) Acquire(context.Context) (billy.Filesystem, error) {
	return nil, common.ErrMountNotSupported
}

// DirProvider grants a host directory, bound so no path can escape it.
// The directory is created when missing.
type DirProvider struct {
	Dir string
}

func (p DirProvider) Acquire(ctx context.Context) (billy.Filesystem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Dir == "" {
		return nil, common.ErrMountNotSupported
	}
	abs, err := filepath.Abs(p.Dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%s: %w", abs, common.ErrMountDenied)
		}
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, common.ErrNotDir)
	}
	return osfs.New(abs, osfs.WithBoundOS()), nil
}
