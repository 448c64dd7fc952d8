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
	"errors"
	"fmt"
)

var (
	ErrInvalidPath        = errors.New("invalid path")
	ErrNotFound           = errors.New("not found")
	ErrExists             = errors.New("already exists")
	ErrNotDir             = errors.New("not a directory")
	ErrIsDir              = errors.New("is a directory")
	ErrParentNotFound     = errors.New("parent not found")
	ErrNotEmpty           = errors.New("directory not empty")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrBackend            = errors.New("backend error")
	ErrMountNotSupported  = errors.New("mount not supported")
	ErrMountDenied        = errors.New("mount denied")
	ErrPersistLoadCorrupt = errors.New("persisted state corrupt")
	ErrFileTooLarge       = errors.New("file too large")
)

// BackendError reports a RealBackend traversal or I/O failure with its cause attached.
// errors.Is(err, ErrBackend) matches any BackendError.
type BackendError struct {
	Op    string
	Path  string
	Cause error
}

// NewBackendError wraps cause. A nil cause yields a nil error.
func NewBackendError(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &BackendError{Op: op, Path: path, Cause: cause}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// kinds maps sentinels to the names used in operation log details.
var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidPath, "InvalidPath"},
	{ErrNotFound, "NotFound"},
	{ErrExists, "AlreadyExists"},
	{ErrNotDir, "NotADirectory"},
	{ErrIsDir, "IsADirectory"},
	{ErrParentNotFound, "ParentNotFound"},
	{ErrNotEmpty, "DirectoryNotEmpty"},
	{ErrPermissionDenied, "PermissionDenied"},
	{ErrMountNotSupported, "MountNotSupported"},
	{ErrMountDenied, "MountDenied"},
	{ErrPersistLoadCorrupt, "PersistLoadCorrupt"},
	{ErrFileTooLarge, "FileTooLarge"},
}

// Kind returns the error kind name for err, or "" for nil.
// BackendError is checked first so a wrapped cause does not mask it.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var be *BackendError
	if errors.As(err, &be) {
		return "BackendError"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "BackendError"
}
