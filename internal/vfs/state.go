package vfs

import (
	"context"
	"encoding/json"
	"fmt"

	"kernelfs/internal/common"
)

// DefaultStateKey is the store key holding the serialized sandbox
const DefaultStateKey = "kernelfs_state"

// StateStore is the durable key/value boundary used by LoadState and SaveState.
// Get returns an error wrapping common.ErrNotFound when key is absent.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Pair serializes as a two-element JSON array [key, value]
type Pair[T any] struct {
	Key   string
	Value T
}

func (p Pair[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, p.Value})
}

func (p *Pair[T]) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("pair has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Value)
}

// Snapshot is the persisted form of the sandbox
type Snapshot struct {
	Tree        []Pair[*VNode]          `json:"tree"`
	Permissions []Pair[PermissionEntry] `json:"permissions"`
	Log         []LogEntry              `json:"log"`
	Timestamp   int64                   `json:"timestamp"`
}

// EncodeSnapshot serializes a snapshot
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses data and checks that tree keys match node paths.
// All failures wrap common.ErrPersistLoadCorrupt.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistLoadCorrupt, err)
	}
	for _, p := range s.Tree {
		if p.Value == nil || p.Value.Path != p.Key {
			return nil, fmt.Errorf("%w: tree key %q does not match its node", common.ErrPersistLoadCorrupt, p.Key)
		}
	}
	for _, p := range s.Permissions {
		if p.Value.Path != p.Key {
			return nil, fmt.Errorf("%w: permission key %q does not match its entry", common.ErrPersistLoadCorrupt, p.Key)
		}
	}
	return &s, nil
}

func (s *Snapshot) nodes() []*VNode {
	out := make([]*VNode, 0, len(s.Tree))
	for _, p := range s.Tree {
		out = append(out, p.Value)
	}
	return out
}

func (s *Snapshot) permissionEntries() []PermissionEntry {
	out := make([]PermissionEntry, 0, len(s.Permissions))
	for _, p := range s.Permissions {
		out = append(out, p.Value)
	}
	return out
}
