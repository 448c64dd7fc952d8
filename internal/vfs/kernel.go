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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kernelfs/internal/common"
)

// MountState tracks which backend serves requests
type MountState int

const (
	// Unmounted serves from the sandbox; no mount was attempted
	Unmounted MountState = iota
	// Mounted serves from the real directory handle
	Mounted
	// MountFailed serves from the sandbox after a failed mount attempt
	MountFailed
)

func (s MountState) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case MountFailed:
		return "mount_failed"
	}
	return fmt.Sprintf("MountState(%d)", int(s))
}

// Options configures a KernelFS. Zero values select defaults.
type Options struct {
	Owner       string
	LogCapacity int
	MaxFileSize int64
	SeedDirs    []string
	StateKey    string
	IgnoreFile  string
	HandleTTL   time.Duration

	// DefaultIgnore is installed as IgnoreFile on a handle that has none
	DefaultIgnore []byte

	Provider HandleProvider
	Store    StateStore
	Sink     NotificationSink
	OnChange ChangeListener
	Clock    func() time.Time
}

func (o *Options) setDefaults() {
	if o.Owner == "" {
		o.Owner = "admin"
	}
	if o.LogCapacity <= 0 {
		o.LogCapacity = DefaultLogCapacity
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.SeedDirs == nil {
		o.SeedDirs = DefaultSeedDirs
	}
	if o.StateKey == "" {
		o.StateKey = DefaultStateKey
	}
	if o.Provider == nil {
		o.Provider = UnsupportedProvider{}
	}
	if o.Sink == nil {
		o.Sink = NopSink{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// MountInfo describes the current mount
type MountInfo struct {
	State     MountState
	ID        string
	MountedAt time.Time
	Root      string
}

// Statistics summarizes the sandbox tree and facade state
type Statistics struct {
	Version          string
	TotalFiles       int
	TotalDirectories int
	TotalSize        int64
	Mount            MountInfo
	OperationCount   int
	LogCapacity      int
	PermissionCount  int
}

// KernelFS is the single entry point for file operations.
// It resolves paths, enforces permissions, dispatches to the backend selected
// by mount state and records every attempted operation.
type KernelFS struct {
	opts Options

	mu      sync.RWMutex
	state   MountState
	memory  *MemoryBackend
	real    *RealBackend
	current Backend
	mount   MountInfo

	perms *PermissionTable
	oplog *OperationLog
}

// New creates a KernelFS holding the default tree and permissions
func New(opts Options) (*KernelFS, error) {
	opts.setDefaults()
	k := &KernelFS{
		opts:  opts,
		perms: NewPermissionTable(),
		oplog: NewOperationLog(opts.LogCapacity),
	}
	tree, err := NewDefaultTree(k.stamp(""))
	if err != nil {
		return nil, err
	}
	k.memory = tree
	k.current = tree
	applyDefaultPermissions(k.perms)
	return k, nil
}

func (k *KernelFS) stamp(mime string) Stamp {
	return Stamp{Now: k.opts.Clock(), Owner: k.opts.Owner, MimeType: mime}
}

func (k *KernelFS) backend() Backend {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// authorize normalizes path and checks op against the permission table.
// Failures here are returned without being logged.
func (k *KernelFS) authorize(path string, op Operation) (common.Path, error) {
	p, err := common.Normalize(path)
	if err != nil {
		return common.Path{}, err
	}
	if !k.perms.Check(p, op) {
		return common.Path{}, fmt.Errorf("%s %s: %w", op, p, common.ErrPermissionDenied)
	}
	return p, nil
}

func (k *KernelFS) record(op, path string, err error) {
	entry := LogEntry{
		Timestamp: k.opts.Clock(),
		Operation: op,
		Path:      path,
		Status:    StatusSuccess,
	}
	if err != nil {
		entry.Status = StatusFailed
		entry.Details = common.Kind(err)
		log.Debugf("[KFS] %s %s failed: %v", op, path, err)
	}
	k.oplog.Record(entry)
}

func (k *KernelFS) emit(path string, action ChangeAction) {
	if k.opts.OnChange != nil {
		k.opts.OnChange(ChangeEvent{Path: path, Action: action})
	}
}

// Read returns the content of the file at path
func (k *KernelFS) Read(ctx context.Context, path string) (data []byte, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[KFS] Read %q → %d bytes, %v (%v)", path, len(data), err, time.Since(start)) }()
	}
	p, err := k.authorize(path, OpRead)
	if err != nil {
		return nil, err
	}
	data, err = k.backend().Read(ctx, p.String(), k.stamp(""))
	k.record("read", p.String(), err)
	return data, err
}

// Write creates or replaces the file at path. The parent directory must exist.
func (k *KernelFS) Write(ctx context.Context, path string, content []byte) (err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[KFS] Write %q len=%d → %v (%v)", path, len(content), err, time.Since(start)) }()
	}
	p, err := k.authorize(path, OpWrite)
	if err != nil {
		return err
	}
	key := p.String()

	if int64(len(content)) > k.opts.MaxFileSize {
		err = fmt.Errorf("write %s: %w: %d bytes exceeds %d", key, common.ErrFileTooLarge, len(content), k.opts.MaxFileSize)
		k.record("write", key, err)
		return err
	}

	err = k.backend().Write(ctx, key, content, k.stamp(detectMime(key, content)))
	k.record("write", key, err)
	if err == nil {
		k.emit(key, ActionWrite)
	}
	return err
}

// Remove deletes path. Non-empty directories require recursive; each removed
// descendant is logged individually.
func (k *KernelFS) Remove(ctx context.Context, path string, recursive bool) (err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() {
			log.Tracef("[KFS] Remove %q recursive=%v → %v (%v)", path, recursive, err, time.Since(start))
		}()
	}
	p, err := k.authorize(path, OpWrite)
	if err != nil {
		return err
	}
	key := p.String()

	var removed []string
	err = k.backend().Remove(ctx, key, recursive, k.stamp(""), func(rp string) {
		removed = append(removed, rp)
	})
	for _, rp := range removed {
		k.record("remove", rp, nil)
		k.emit(rp, ActionRemove)
	}
	if err != nil {
		k.record("remove", key, err)
	}
	return err
}

// List returns the entries of the directory at path, directories first
func (k *KernelFS) List(ctx context.Context, path string) (entries []DirEntry, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() {
			log.Tracef("[KFS] List %q → %d entries, %v (%v)", path, len(entries), err, time.Since(start))
		}()
	}
	p, err := k.authorize(path, OpRead)
	if err != nil {
		return nil, err
	}
	entries, err = k.backend().List(ctx, p.String())
	k.record("list", p.String(), err)
	return entries, err
}

// Mkdir creates a single directory. The parent directory must exist.
func (k *KernelFS) Mkdir(ctx context.Context, path string) error {
	p, err := k.authorize(path, OpWrite)
	if err != nil {
		return err
	}
	err = k.backend().Mkdir(ctx, p.String(), k.stamp(""))
	k.record("mkdir", p.String(), err)
	if err == nil {
		k.emit(p.String(), ActionMkdir)
	}
	return err
}

// MkdirAll creates path and any missing ancestors. Existing directories are not an error.
func (k *KernelFS) MkdirAll(ctx context.Context, path string) error {
	p, err := k.authorize(path, OpWrite)
	if err != nil {
		return err
	}
	b := k.backend()

	ancestors := p.Ancestors()
	for i := len(ancestors) - 1; i >= 0; i-- {
		dir := ancestors[i]
		if dir.IsRoot() {
			continue
		}
		info, serr := b.Stat(ctx, dir.String())
		switch {
		case serr == nil && info.Kind == KindDirectory:
			continue
		case serr == nil:
			err = fmt.Errorf("mkdir %s: %w", dir, common.ErrNotDir)
		case errors.Is(serr, common.ErrNotFound):
			err = b.Mkdir(ctx, dir.String(), k.stamp(""))
		default:
			err = serr
		}
		if err != nil {
			k.record("mkdir", p.String(), err)
			return err
		}
		k.emit(dir.String(), ActionMkdir)
	}
	k.record("mkdir", p.String(), nil)
	return nil
}

// Stat returns metadata for path. Stat is not recorded in the operation log.
func (k *KernelFS) Stat(ctx context.Context, path string) (*NodeInfo, error) {
	p, err := k.authorize(path, OpRead)
	if err != nil {
		return nil, err
	}
	return k.backend().Stat(ctx, p.String())
}

// CheckPermission reports whether op is allowed at path
func (k *KernelFS) CheckPermission(path string, op Operation) (bool, error) {
	p, err := common.Normalize(path)
	if err != nil {
		return false, err
	}
	if _, err := ParseOperation(string(op)); err != nil {
		return false, err
	}
	return k.perms.Check(p, op), nil
}

// SetPermission stores a rule for op at path
func (k *KernelFS) SetPermission(path string, op Operation, allowed bool) error {
	p, err := common.Normalize(path)
	if err != nil {
		return err
	}
	if _, err := ParseOperation(string(op)); err != nil {
		return err
	}
	k.perms.Set(p, op, allowed)
	log.Debugf("[KFS] permission %s %s=%v", p, op, allowed)
	return nil
}

// Permissions returns every stored permission entry
func (k *KernelFS) Permissions() []PermissionEntry {
	return k.perms.Entries()
}

// GetLog returns up to limit recent log entries, most recent last
func (k *KernelFS) GetLog(limit int) []LogEntry {
	return k.oplog.Recent(limit)
}

// MountState returns the current mount state
func (k *KernelFS) MountState() MountState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// MountInfo returns details of the current mount
func (k *KernelFS) MountInfo() MountInfo {
	k.mu.RLock()
	defer k.mu.RUnlock()
	info := k.mount
	info.State = k.state
	return info
}

// Statistics summarizes the sandbox tree and facade state
func (k *KernelFS) Statistics() Statistics {
	k.mu.RLock()
	ts := k.memory.Stats()
	k.mu.RUnlock()
	return Statistics{
		Version:          KernelVersion,
		TotalFiles:       ts.Files,
		TotalDirectories: ts.Directories,
		TotalSize:        ts.TotalSize,
		Mount:            k.MountInfo(),
		OperationCount:   k.oplog.Len(),
		LogCapacity:      k.oplog.Capacity(),
		PermissionCount:  k.perms.Len(),
	}
}

// kernelState is written to KernelStateFile on every successful mount
type kernelState struct {
	Version   string `json:"version"`
	Build     int    `json:"build"`
	MountID   string `json:"mountId"`
	MountTime int64  `json:"mountTime"`
}

// Mount acquires a directory handle from the provider and switches to it.
// On failure the sandbox keeps serving and the state becomes MountFailed.
func (k *KernelFS) Mount(ctx context.Context) error {
	root, err := k.opts.Provider.Acquire(ctx)
	if err == nil && root == nil {
		err = common.ErrMountNotSupported
	}
	if err != nil {
		if !errors.Is(err, common.ErrMountNotSupported) && !errors.Is(err, common.ErrMountDenied) {
			err = common.NewBackendError("mount", "/", err)
		}
		return k.mountFailed(err)
	}

	if err := InstallIgnoreFile(root, k.opts.IgnoreFile, k.opts.DefaultIgnore); err != nil {
		log.Warnf("[KFS] failed to install %s: %v", k.opts.IgnoreFile, err)
	}
	rb := NewRealBackend(root, k.opts.HandleTTL, BuildListingFilter(root, k.opts.IgnoreFile))
	now := k.opts.Clock()
	id := uuid.NewString()
	if err := k.seed(ctx, rb, id, now); err != nil {
		return k.mountFailed(err)
	}

	k.mu.Lock()
	k.state = Mounted
	k.real = rb
	k.current = rb
	k.mount = MountInfo{ID: id, MountedAt: now, Root: rb.Root()}
	k.mu.Unlock()

	k.record("mount", "/", nil)
	log.Infof("[KFS] mounted %s (id=%s)", rb.Root(), id)
	k.opts.Sink.Notify(fmt.Sprintf("Hardware uplink mounted at %s", rb.Root()), SeverityInfo)
	k.emit("/", ActionMount)
	return nil
}

// seed creates the expected top-level directories and the kernel state file
func (k *KernelFS) seed(ctx context.Context, b Backend, id string, now time.Time) error {
	dirs := append([]string{}, k.opts.SeedDirs...)
	dirs = append(dirs, common.ParentPath(KernelStateFile)[1:])
	for _, name := range dirs {
		if !common.ValidName(name) {
			return fmt.Errorf("seed %q: %w", name, common.ErrInvalidPath)
		}
		err := b.Mkdir(ctx, "/"+name, k.stamp(""))
		if err != nil && !errors.Is(err, common.ErrExists) {
			return err
		}
	}

	state, err := json.MarshalIndent(kernelState{
		Version:   KernelVersion,
		Build:     KernelBuild,
		MountID:   id,
		MountTime: now.UnixMilli(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return b.Write(ctx, KernelStateFile, state, k.stamp("application/json"))
}

func (k *KernelFS) mountFailed(err error) error {
	k.mu.Lock()
	k.state = MountFailed
	k.real = nil
	k.current = k.memory
	k.mount = MountInfo{}
	k.mu.Unlock()

	k.record("mount", "/", err)
	log.Warnf("[KFS] mount failed, serving from sandbox: %v", err)
	k.opts.Sink.Notify(fmt.Sprintf("Hardware uplink unavailable: %v", err), SeverityError)
	return err
}

// SaveState writes the sandbox tree, permissions and log to the store
func (k *KernelFS) SaveState(ctx context.Context) error {
	if k.opts.Store == nil {
		return errors.New("no state store configured")
	}
	k.mu.RLock()
	nodes := k.memory.Snapshot()
	k.mu.RUnlock()

	snap := &Snapshot{
		Tree:      make([]Pair[*VNode], 0, len(nodes)),
		Log:       k.oplog.Entries(),
		Timestamp: k.opts.Clock().UnixMilli(),
	}
	for _, n := range nodes {
		snap.Tree = append(snap.Tree, Pair[*VNode]{Key: n.Path, Value: n})
	}
	for _, e := range k.perms.Entries() {
		snap.Permissions = append(snap.Permissions, Pair[PermissionEntry]{Key: e.Path, Value: e})
	}

	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := k.opts.Store.Put(ctx, k.opts.StateKey, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	log.Debugf("[KFS] saved state: %d nodes, %d bytes", len(nodes), len(data))
	return nil
}

// LoadState restores the sandbox from the store. A missing key keeps the
// current state. Corrupt data is replaced by the default tree with a warning.
func (k *KernelFS) LoadState(ctx context.Context) error {
	if k.opts.Store == nil {
		return nil
	}
	data, err := k.opts.Store.Get(ctx, k.opts.StateKey)
	if errors.Is(err, common.ErrNotFound) {
		log.Debugf("[KFS] no saved state under %q", k.opts.StateKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	if err := k.restore(data); err != nil {
		if !errors.Is(err, common.ErrPersistLoadCorrupt) {
			return err
		}
		log.Warnf("[KFS] %v", err)
		if rerr := k.resetToDefaults(); rerr != nil {
			return rerr
		}
		k.opts.Sink.Notify("Saved file system state is corrupt; starting from the default tree", SeverityWarning)
	}
	return nil
}

func (k *KernelFS) restore(data []byte) error {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	tree := NewMemoryBackend(k.stamp(""))
	if err := tree.Restore(snap.nodes()); err != nil {
		return err
	}
	perms := NewPermissionTable()
	if err := perms.Load(snap.permissionEntries()); err != nil {
		return err
	}

	k.swapSandbox(tree, perms)
	k.oplog.Load(snap.Log)
	log.Debugf("[KFS] loaded state: %d nodes, %d permissions", len(snap.Tree), len(snap.Permissions))
	return nil
}

func (k *KernelFS) resetToDefaults() error {
	tree, err := NewDefaultTree(k.stamp(""))
	if err != nil {
		return err
	}
	perms := NewPermissionTable()
	applyDefaultPermissions(perms)
	k.swapSandbox(tree, perms)
	k.oplog.Load(nil)
	return nil
}

func (k *KernelFS) swapSandbox(tree *MemoryBackend, perms *PermissionTable) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.memory = tree
	if k.state != Mounted {
		k.current = tree
	}
	k.perms.Replace(perms)
}
