package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelfs/internal/common"
)

func TestPermissionTable(t *testing.T) {
	t.Parallel()
	p := common.MustNormalize

	t.Run("defaults without rules", func(t *testing.T) {
		t.Parallel()
		tbl := NewPermissionTable()
		assert.True(t, tbl.Check(p("/x"), OpRead))
		assert.False(t, tbl.Check(p("/x"), OpWrite))
		assert.True(t, tbl.Check(p("/x"), OpExecute))
	})

	t.Run("closest ancestor wins", func(t *testing.T) {
		t.Parallel()
		tbl := NewPermissionTable()
		tbl.Set(p("/"), OpWrite, true)
		tbl.Set(p("/system"), OpWrite, false)
		tbl.Set(p("/system/tmp"), OpWrite, true)

		assert.False(t, tbl.Check(p("/system/config.sys"), OpWrite))
		assert.True(t, tbl.Check(p("/system/tmp/x"), OpWrite))
		assert.True(t, tbl.Check(p("/users"), OpWrite))
	})

	t.Run("rules are per operation", func(t *testing.T) {
		t.Parallel()
		tbl := NewPermissionTable()
		tbl.Set(p("/"), OpRead, false)
		tbl.Set(p("/a"), OpWrite, true)
		// /a has no read rule, so the root rule applies
		assert.False(t, tbl.Check(p("/a/b"), OpRead))
		assert.True(t, tbl.Check(p("/a/b"), OpWrite))
	})

	t.Run("set overwrites", func(t *testing.T) {
		t.Parallel()
		tbl := NewPermissionTable()
		tbl.Set(p("/a"), OpWrite, true)
		tbl.Set(p("/a"), OpWrite, false)
		assert.False(t, tbl.Check(p("/a"), OpWrite))
		assert.Equal(t, 1, tbl.Len())
	})

	t.Run("entries load round trip", func(t *testing.T) {
		t.Parallel()
		tbl := NewPermissionTable()
		applyDefaultPermissions(tbl)
		other := NewPermissionTable()
		require.NoError(t, other.Load(tbl.Entries()))
		assert.Equal(t, tbl.Entries(), other.Entries())
		assert.False(t, other.Check(p("/users/guest/x"), OpWrite))
	})

	t.Run("replace copies rules", func(t *testing.T) {
		t.Parallel()
		src := NewPermissionTable()
		applyDefaultPermissions(src)
		tbl := NewPermissionTable()
		tbl.Set(p("/scratch"), OpWrite, true)

		tbl.Replace(src)
		assert.Equal(t, src.Entries(), tbl.Entries())
		assert.False(t, tbl.Check(p("/scratch"), OpWrite))

		tbl.Set(p("/users/guest"), OpWrite, true)
		assert.False(t, src.Check(p("/users/guest/x"), OpWrite))
	})

	t.Run("load rejects bad path", func(t *testing.T) {
		t.Parallel()
		err := NewPermissionTable().Load([]PermissionEntry{{Path: "nope"}})
		assert.ErrorIs(t, err, common.ErrPersistLoadCorrupt)
	})
}

func TestParseOperation(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"read", "write", "execute"} {
		op, err := ParseOperation(s)
		require.NoError(t, err)
		assert.Equal(t, Operation(s), op)
	}
	_, err := ParseOperation("delete")
	assert.Error(t, err)
}
