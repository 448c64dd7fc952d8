package vfs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationLog(t *testing.T) {
	t.Parallel()

	entry := func(i int) LogEntry {
		return LogEntry{Operation: "write", Path: fmt.Sprintf("/f%d", i), Status: StatusSuccess}
	}

	t.Run("evicts oldest beyond capacity", func(t *testing.T) {
		t.Parallel()
		l := NewOperationLog(0)
		for i := 0; i < 1500; i++ {
			l.Record(entry(i))
		}
		got := l.Recent(2000)
		assert.Len(t, got, DefaultLogCapacity)
		assert.Equal(t, "/f500", got[0].Path)
		assert.Equal(t, "/f1499", got[len(got)-1].Path)
	})

	t.Run("recent limits and orders", func(t *testing.T) {
		t.Parallel()
		l := NewOperationLog(5)
		for i := 0; i < 3; i++ {
			l.Record(entry(i))
		}
		got := l.Recent(2)
		assert.Equal(t, []string{"/f1", "/f2"}, []string{got[0].Path, got[1].Path})
		assert.Len(t, l.Recent(0), 3)
		assert.Len(t, l.Recent(-1), 3)
		assert.Len(t, l.Recent(10), 3)
	})

	t.Run("recent is a copy", func(t *testing.T) {
		t.Parallel()
		l := NewOperationLog(2)
		l.Record(entry(0))
		got := l.Recent(1)
		got[0].Path = "/mutated"
		assert.Equal(t, "/f0", l.Recent(1)[0].Path)
	})

	t.Run("load keeps newest", func(t *testing.T) {
		t.Parallel()
		l := NewOperationLog(2)
		l.Load([]LogEntry{entry(0), entry(1), entry(2)})
		assert.Equal(t, 2, l.Len())
		assert.Equal(t, "/f1", l.Entries()[0].Path)
		l.Record(entry(3))
		assert.Equal(t, "/f3", l.Recent(1)[0].Path)
	})
}
