package vfs

import (
	"sync"
	"time"
)

// DefaultLogCapacity is the number of operations retained by default
const DefaultLogCapacity = 1000

// Status is the outcome of a logged operation
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// LogEntry records one attempted operation
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Path      string    `json:"path"`
	Status    Status    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

// OperationLog is a fixed-capacity FIFO of operation outcomes.
// The oldest entry is evicted once capacity is reached.
type OperationLog struct {
	mu       sync.RWMutex
	buf      []LogEntry
	start    int
	count    int
	capacity int
}

// NewOperationLog creates a log holding at most capacity entries.
// A non-positive capacity selects DefaultLogCapacity.
func NewOperationLog(capacity int) *OperationLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &OperationLog{
		buf:      make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Record appends entry, evicting the oldest when full
func (l *OperationLog) Record(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(entry)
}

func (l *OperationLog) appendLocked(entry LogEntry) {
	if l.count < l.capacity {
		l.buf[(l.start+l.count)%l.capacity] = entry
		l.count++
		return
	}
	l.buf[l.start] = entry
	l.start = (l.start + 1) % l.capacity
}

// Recent returns a copy of the last n entries, most recent last.
// n <= 0 or n beyond the stored count returns everything.
func (l *OperationLog) Recent(n int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]LogEntry, n)
	skip := l.count - n
	for i := 0; i < n; i++ {
		out[i] = l.buf[(l.start+skip+i)%l.capacity]
	}
	return out
}

// Entries returns every stored entry, oldest first
func (l *OperationLog) Entries() []LogEntry {
	return l.Recent(0)
}

// Len returns the number of stored entries
func (l *OperationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Capacity returns the maximum number of stored entries
func (l *OperationLog) Capacity() int {
	return l.capacity
}

// Load replaces the contents with entries. Only the newest entries that fit are kept.
func (l *OperationLog) Load(entries []LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = make([]LogEntry, l.capacity)
	l.start, l.count = 0, 0
	if len(entries) > l.capacity {
		entries = entries[len(entries)-l.capacity:]
	}
	for _, e := range entries {
		l.appendLocked(e)
	}
}
