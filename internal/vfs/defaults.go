package vfs

import (
	"context"
	"fmt"

	"kernelfs/internal/common"
)

// KernelVersion is reported in kernel_state.json and statistics
const (
	KernelVersion = "18.0.0"
	KernelBuild   = 1800
)

// DefaultSeedDirs are created at the root of a freshly mounted handle
var DefaultSeedDirs = []string{"system", "users", "applications", "temp"}

// KernelStateFile is written under the first seed directory on mount
const KernelStateFile = "/system/kernel_state.json"

var defaultDirs = []string{
	"/system",
	"/system/kernel",
	"/system/drivers",
	"/system/registry",
	"/users",
	"/users/admin",
	"/users/admin/documents",
	"/users/admin/downloads",
	"/users/admin/pictures",
	"/users/guest",
	"/users/guest/documents",
	"/users/guest/temp",
	"/applications",
}

var defaultFiles = []struct {
	path    string
	content string
}{
	{"/readme.txt", `KERNELFS v18.0

Virtual file system for the desktop shell.

Storage:
- sandbox tree kept in memory and saved to the state store
- hardware uplink to a real directory via mount

Commands:
- ls, cat, write, mkdir, rm, stat
- log: recent operations
- perm: inspect and change permissions
`},
	{"/boot.ini", `[boot loader]
timeout=30
default=kernelfs

[operating systems]
kernelfs="KernelFS v18.0" /fastdetect
`},
	{"/system/config.sys", `[System]
Version=18.0.0
Build=1800

[Security]
AccessLevel=User
`},
	{"/users/admin/config.ini", `[UserProfile]
Name=admin
Home=/users/admin/

[Preferences]
Terminal=bash
`},
	{"/system/kernel/core.dll", ""},
	{"/system/kernel/fs.sys", ""},
	{"/system/registry/system.dat", ""},
	{"/system/registry/user.dat", ""},
	{"/system/registry/security.dat", ""},
	{"/applications/terminal.exe", ""},
	{"/applications/explorer.exe", ""},
	{"/applications/settings.exe", ""},
}

type defaultRule struct {
	path                 string
	read, write, execute bool
}

var defaultPermissions = []defaultRule{
	{"/", true, false, true},
	{"/system", true, false, false},
	{"/users", true, true, true},
	{"/users/admin", true, true, true},
	{"/users/guest", true, false, true},
	{"/applications", true, false, true},
}

// NewDefaultTree builds the sandbox tree a fresh installation starts with
func NewDefaultTree(st Stamp) (*MemoryBackend, error) {
	ctx := context.Background()
	m := NewMemoryBackend(st)
	for _, dir := range defaultDirs {
		if err := m.Mkdir(ctx, dir, st); err != nil {
			return nil, fmt.Errorf("seed %s: %w", dir, err)
		}
	}
	for _, f := range defaultFiles {
		fst := st
		fst.MimeType = detectMime(f.path, []byte(f.content))
		if err := m.Write(ctx, f.path, []byte(f.content), fst); err != nil {
			return nil, fmt.Errorf("seed %s: %w", f.path, err)
		}
	}
	return m, nil
}

// applyDefaultPermissions installs the built-in permission rules
func applyDefaultPermissions(t *PermissionTable) {
	for _, r := range defaultPermissions {
		p := common.MustNormalize(r.path)
		t.Set(p, OpRead, r.read)
		t.Set(p, OpWrite, r.write)
		t.Set(p, OpExecute, r.execute)
	}
}
