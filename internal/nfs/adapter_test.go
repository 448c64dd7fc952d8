package nfs

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"syscall"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelfs/internal/vfs"
)

func newTestAdapter(t *testing.T) (*Adapter, *vfs.KernelFS) {
	t.Helper()
	kfs, err := vfs.New(vfs.Options{Sink: vfs.NopSink{}})
	require.NoError(t, err)
	return NewAdapter(context.Background(), kfs), kfs
}

func TestAdapterCreateWriteRead(t *testing.T) {
	t.Parallel()
	a, kfs := newTestAdapter(t)
	ctx := context.Background()

	f, err := a.Create("users/notes.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = f.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := kfs.Read(ctx, "/users/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	got, err := util.ReadFile(a, "users/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	info, err := a.Stat("users/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", info.Name())
	assert.Equal(t, int64(11), info.Size())
	assert.False(t, info.IsDir())
}

func TestAdapterErrors(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t)

	tests := []struct {
		name  string
		run   func() error
		check func(error) bool
	}{
		{"open missing", func() error { _, err := a.Open("users/missing.txt"); return err }, os.IsNotExist},
		{"stat missing", func() error { _, err := a.Stat("nope"); return err }, os.IsNotExist},
		{"create in read-only dir", func() error { _, err := a.Create("system/x.txt"); return err }, os.IsPermission},
		{"exclusive create of existing", func() error {
			_, err := a.OpenFile("readme.txt", os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
			return err
		}, os.IsExist},
		{"open directory", func() error { _, err := a.Open("users"); return err }, func(err error) bool {
			return errors.Is(err, syscall.EISDIR)
		}},
		{"remove non-empty directory", func() error { return a.Remove("users/admin") }, func(err error) bool {
			return errors.Is(err, syscall.ENOTEMPTY)
		}},
		{"create with missing parent", func() error { _, err := a.Create("users/ghost/x.txt"); return err }, os.IsNotExist},
		{"invalid json on close", func() error {
			f, err := a.Create("users/bad.json")
			if err != nil {
				return err
			}
			_, _ = f.Write([]byte("{"))
			return f.Close()
		}, func(err error) bool { return errors.Is(err, syscall.EINVAL) }},
		{"symlink", func() error { return a.Symlink("a", "users/b") }, func(err error) bool {
			return errors.Is(err, billy.ErrNotSupported)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestAdapterFileOps(t *testing.T) {
	t.Parallel()
	a, kfs := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, kfs.Write(ctx, "/users/data.txt", []byte("0123456789")))

	t.Run("seek and read", func(t *testing.T) {
		f, err := a.Open("users/data.txt")
		require.NoError(t, err)
		defer f.Close()

		pos, err := f.Seek(-3, io.SeekEnd)
		require.NoError(t, err)
		assert.Equal(t, int64(7), pos)
		buf := make([]byte, 8)
		n, err := f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "789", string(buf[:n]))
		_, err = f.Read(buf)
		assert.Equal(t, io.EOF, err)

		n, err = f.ReadAt(buf[:4], 2)
		require.NoError(t, err)
		assert.Equal(t, "2345", string(buf[:n]))
		n, err = f.ReadAt(buf, 6)
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, 4, n)
	})

	t.Run("read-only handle rejects writes", func(t *testing.T) {
		f, err := a.Open("users/data.txt")
		require.NoError(t, err)
		defer f.Close()
		_, err = f.Write([]byte("x"))
		assert.True(t, os.IsPermission(err))
		assert.True(t, os.IsPermission(f.Truncate(0)))
	})

	t.Run("write at offset", func(t *testing.T) {
		f, err := a.OpenFile("users/data.txt", os.O_RDWR, 0)
		require.NoError(t, err)
		_, err = f.Seek(8, io.SeekStart)
		require.NoError(t, err)
		_, err = f.Write([]byte("XYZ"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		data, err := kfs.Read(ctx, "/users/data.txt")
		require.NoError(t, err)
		assert.Equal(t, "01234567XYZ", string(data))
	})

	t.Run("append", func(t *testing.T) {
		f, err := a.OpenFile("users/data.txt", os.O_WRONLY|os.O_APPEND, 0)
		require.NoError(t, err)
		_, err = f.Write([]byte("!"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		data, err := kfs.Read(ctx, "/users/data.txt")
		require.NoError(t, err)
		assert.Equal(t, "01234567XYZ!", string(data))
	})

	t.Run("truncate", func(t *testing.T) {
		f, err := a.OpenFile("users/data.txt", os.O_RDWR, 0)
		require.NoError(t, err)
		require.NoError(t, f.Truncate(4))
		require.NoError(t, f.Close())

		data, err := kfs.Read(ctx, "/users/data.txt")
		require.NoError(t, err)
		assert.Equal(t, "0123", string(data))
	})

	t.Run("close twice", func(t *testing.T) {
		f, err := a.Open("users/data.txt")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.ErrorIs(t, f.Close(), os.ErrClosed)
	})

	t.Run("unmodified close does not write", func(t *testing.T) {
		before := len(kfs.GetLog(0))
		f, err := a.OpenFile("users/data.txt", os.O_RDWR, 0)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		entries := kfs.GetLog(0)
		require.Len(t, entries, before+1)
		assert.Equal(t, "read", entries[len(entries)-1].Operation)
	})
}

func TestAdapterPlaceholderCreate(t *testing.T) {
	t.Parallel()
	a, kfs := newTestAdapter(t)

	f, err := a.Create("users/settings.json")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = a.OpenFile("users/settings.json", os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"theme":"dark"}`))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := kfs.Stat(context.Background(), "/users/settings.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", info.MimeType)
}

func TestAdapterReadDirModes(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t)

	infos, err := a.ReadDir("")
	require.NoError(t, err)
	modes := map[string]os.FileMode{}
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
		modes[fi.Name()] = fi.Mode()
	}
	sort.Strings(names)
	assert.Equal(t, []string{"applications", "boot.ini", "readme.txt", "system", "users"}, names)

	assert.Equal(t, os.ModeDir|0755, modes["users"])
	assert.Equal(t, os.ModeDir|0444, modes["system"])
	assert.Equal(t, os.ModeDir|0555, modes["applications"])
	assert.Equal(t, os.FileMode(0444), modes["readme.txt"])
}

func TestAdapterRenameAndRemove(t *testing.T) {
	t.Parallel()
	a, kfs := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, kfs.Write(ctx, "/users/a.txt", []byte("payload")))

	require.NoError(t, a.Rename("users/a.txt", "users/admin/b.txt"))
	_, err := a.Stat("users/a.txt")
	assert.True(t, os.IsNotExist(err))
	data, err := kfs.Read(ctx, "/users/admin/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	err = a.Rename("users/guest", "users/visitor")
	var linkErr *os.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, syscall.EXDEV, linkErr.Err)

	require.NoError(t, a.MkdirAll("users/x/y/z", 0755))
	require.NoError(t, a.Remove("users/x/y/z"))
	_, err = kfs.Stat(ctx, "/users/x/y/z")
	assert.Error(t, err)
	_, err = kfs.Stat(ctx, "/users/x/y")
	assert.NoError(t, err)
}

func TestAdapterChroot(t *testing.T) {
	t.Parallel()
	a, kfs := newTestAdapter(t)

	sub, err := a.Chroot("users/admin")
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(sub, "documents/todo.txt", []byte("milk"), 0644))

	data, err := kfs.Read(context.Background(), "/users/admin/documents/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, "milk", string(data))
	assert.Equal(t, "/", a.Root())
}
