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

// Package nfs exports a KernelFS over NFSv3.
package nfs

import (
	"context"
	"errors"
	"hash/fnv"
	"io/fs"
	"os"
	"path"
	"syscall"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	log "github.com/sirupsen/logrus"
	nfsfile "github.com/willscott/go-nfs/file"

	"kernelfs/internal/common"
	"kernelfs/internal/vfs"
)

// Adapter presents a KernelFS as a billy.Filesystem.
// Every call goes through the facade, so permissions and the operation log apply.
type Adapter struct {
	kfs *vfs.KernelFS
	ctx context.Context
	uid uint32 // cached os.Getuid()
	gid uint32 // cached os.Getgid()
}

// NewAdapter wraps kfs. ctx bounds every facade call made through the adapter.
func NewAdapter(ctx context.Context, kfs *vfs.KernelFS) *Adapter {
	return &Adapter{
		kfs: kfs,
		ctx: ctx,
		uid: uint32(os.Getuid()),
		gid: uint32(os.Getgid()),
	}
}

// canonical turns a billy path (relative, possibly empty) into a facade path
func canonical(name string) string {
	return path.Clean("/" + name)
}

// osError translates facade errors into the os error values go-nfs maps to NFS status codes
func osError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var target error
	switch {
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrParentNotFound):
		target = fs.ErrNotExist
	case errors.Is(err, common.ErrExists):
		target = fs.ErrExist
	case errors.Is(err, common.ErrPermissionDenied):
		target = fs.ErrPermission
	case errors.Is(err, common.ErrNotDir):
		target = syscall.ENOTDIR
	case errors.Is(err, common.ErrIsDir):
		target = syscall.EISDIR
	case errors.Is(err, common.ErrNotEmpty):
		target = syscall.ENOTEMPTY
	case errors.Is(err, common.ErrFileTooLarge):
		target = syscall.EFBIG
	case errors.Is(err, common.ErrInvalidPath):
		target = syscall.EINVAL
	default:
		return err
	}
	log.Debugf("[NFS] %s %s: %v", op, name, err)
	return &os.PathError{Op: op, Path: name, Err: target}
}

func (a *Adapter) Create(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
}

func (a *Adapter) Open(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_RDONLY, 0)
}

// OpenFile loads the whole file into memory. Writes are buffered and flushed
// as a single facade Write on Close.
func (a *Adapter) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	name := canonical(filename)
	info, err := a.kfs.Stat(a.ctx, name)
	switch {
	case err == nil && info.Kind == vfs.KindDirectory:
		return nil, osError("open", name, common.ErrIsDir)
	case err == nil && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, osError("open", name, common.ErrExists)
	case errors.Is(err, common.ErrNotFound) && flag&os.O_CREATE != 0:
		if err := a.kfs.Write(a.ctx, name, nil); err != nil {
			return nil, osError("create", name, err)
		}
	case err != nil:
		return nil, osError("open", name, err)
	}

	f := &File{adapter: a, name: name, flag: flag}
	if flag&os.O_TRUNC != 0 {
		f.dirty = writable(flag)
		return f, nil
	}
	data, err := a.kfs.Read(a.ctx, name)
	if err != nil {
		return nil, osError("open", name, err)
	}
	f.buf = data
	return f, nil
}

func (a *Adapter) Stat(filename string) (os.FileInfo, error) {
	name := canonical(filename)
	info, err := a.kfs.Stat(a.ctx, name)
	if err != nil {
		return nil, osError("stat", name, err)
	}
	return a.fileInfo(info), nil
}

// Lstat is Stat; the tree has no symlinks
func (a *Adapter) Lstat(filename string) (os.FileInfo, error) {
	return a.Stat(filename)
}

// Rename moves a file by copying its content and removing the source.
// Directories report EXDEV so clients fall back to copy and delete.
func (a *Adapter) Rename(oldpath, newpath string) error {
	from, to := canonical(oldpath), canonical(newpath)
	if from == to {
		return nil
	}
	info, err := a.kfs.Stat(a.ctx, from)
	if err != nil {
		return osError("rename", from, err)
	}
	if info.Kind == vfs.KindDirectory {
		return &os.LinkError{Op: "rename", Old: from, New: to, Err: syscall.EXDEV}
	}
	data, err := a.kfs.Read(a.ctx, from)
	if err != nil {
		return osError("rename", from, err)
	}
	if err := a.kfs.Write(a.ctx, to, data); err != nil {
		return osError("rename", to, err)
	}
	return osError("rename", from, a.kfs.Remove(a.ctx, from, false))
}

// Remove deletes a file or an empty directory
func (a *Adapter) Remove(filename string) error {
	name := canonical(filename)
	return osError("remove", name, a.kfs.Remove(a.ctx, name, false))
}

func (a *Adapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (a *Adapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

func (a *Adapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	name := canonical(dirname)
	entries, err := a.kfs.List(a.ctx, name)
	if err != nil {
		return nil, osError("readdir", name, err)
	}
	result := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := a.kfs.Stat(a.ctx, path.Join(name, e.Name))
		if err != nil {
			// removed between List and Stat
			continue
		}
		result = append(result, a.fileInfo(info))
	}
	return result, nil
}

func (a *Adapter) MkdirAll(filename string, _ os.FileMode) error {
	name := canonical(filename)
	return osError("mkdir", name, a.kfs.MkdirAll(a.ctx, name))
}

func (a *Adapter) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (a *Adapter) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

func (a *Adapter) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(a, canonical(p)), nil
}

func (a *Adapter) Root() string {
	return "/"
}

// billy.Change interface. Access is governed by the permission table, so
// mode, owner and time changes from clients are accepted and ignored.
func (a *Adapter) Chmod(name string, mode os.FileMode) error         { return nil }
func (a *Adapter) Lchown(name string, uid, gid int) error            { return nil }
func (a *Adapter) Chown(name string, uid, gid int) error             { return nil }
func (a *Adapter) Chtimes(name string, atime, mtime time.Time) error { return nil }

func (a *Adapter) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

// fileInfo derives permission bits from the permission table
func (a *Adapter) fileInfo(info *vfs.NodeInfo) *FileInfo {
	allowed := func(op vfs.Operation) bool {
		ok, _ := a.kfs.CheckPermission(info.Path, op)
		return ok
	}
	var mode os.FileMode
	if allowed(vfs.OpRead) {
		mode |= 0444
	}
	if allowed(vfs.OpWrite) {
		mode |= 0200
	}
	if info.Kind == vfs.KindDirectory {
		if allowed(vfs.OpExecute) {
			mode |= 0111
		}
		mode |= os.ModeDir
	}
	return &FileInfo{info: *info, mode: mode, uid: a.uid, gid: a.gid}
}

// FileInfo is the os.FileInfo view of a facade NodeInfo
type FileInfo struct {
	info vfs.NodeInfo
	mode os.FileMode
	uid  uint32
	gid  uint32
}

func (fi *FileInfo) Name() string {
	if fi.info.Path == "/" {
		return "/"
	}
	return path.Base(fi.info.Path)
}

func (fi *FileInfo) Size() int64        { return fi.info.Size }
func (fi *FileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *FileInfo) ModTime() time.Time { return fi.info.ModifiedAt }
func (fi *FileInfo) IsDir() bool        { return fi.info.Kind == vfs.KindDirectory }

// Sys returns *nfsfile.FileInfo; go-nfs only reads ids from that type.
func (fi *FileInfo) Sys() interface{} {
	return &nfsfile.FileInfo{
		Nlink:  1,
		UID:    fi.uid,
		GID:    fi.gid,
		Fileid: fileID(fi.info.Path),
	}
}

// fileID is a stable inode number for path
func fileID(p string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(p))
	return h.Sum64()
}

var (
	_ billy.Filesystem = (*Adapter)(nil)
	_ billy.Change     = (*Adapter)(nil)
	_ os.FileInfo      = (*FileInfo)(nil)
)
