// Package memtable implements the ordered in-memory buffer that receives
// every write before it is ever flushed to disk, grounded on the
// teacher's memtable.Memtable: a github.com/INLOpen/skiplist ordered by
// key under an RWMutex, with a monotone size estimate used to decide
// rotation.
//
// The teacher's memtable additionally orders by a per-entry point ID to
// keep every historical version of a time-series key; this store has no
// such versioning axis (Non-goal: transactional ordering beyond
// last-write-wins per key), so the comparator here is plain key order and
// Put always overwrites in place.
package memtable

import (
	"bytes"
	"sync"

	"github.com/INLOpen/skiplist"

	"github.com/ganjayant/lsmkv/core"
)

// entryOverhead approximates the per-node bookkeeping cost (skiplist
// forward pointers, struct headers) that a raw len(key)+len(value) sum
// would otherwise ignore. It only needs to make Size() monotone and
// roughly proportional to resident bytes; spec.md §4.1 does not require
// precision.
const entryOverhead = 48

// Key is the skiplist's comparable key type.
type Key struct {
	Key []byte
}

func comparator(a, b *Key) int {
	return bytes.Compare(a.Key, b.Key)
}

// Entry is the value stored alongside each Key in the skiplist.
type Entry struct {
	Key       []byte
	Value     []byte
	EntryType core.EntryType
}

func (e *Entry) size() int64 {
	return int64(len(e.Key)+len(e.Value)+entryOverhead) + 1
}

// Memtable is a sorted, mutable key-value buffer. It is safe for
// concurrent use.
type Memtable struct {
	mu        sync.RWMutex
	data      *skiplist.SkipList[*Key, *Entry]
	sizeBytes int64
}

// New creates an empty memtable.
func New() *Memtable {
	return &Memtable{
		data: skiplist.NewWithComparator[*Key, *Entry](comparator),
	}
}

// Put inserts or overwrites key with value. Never fails.
func (m *Memtable) Put(key, value []byte) {
	m.store(key, value, core.EntryTypePut)
}

// Delete writes a tombstone for key. Always succeeds; does not check
// whether the key previously existed.
func (m *Memtable) Delete(key []byte) {
	m.store(key, nil, core.EntryTypeDelete)
}

func (m *Memtable) store(key, value []byte, entryType core.EntryType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newEntry := &Entry{Key: key, Value: value, EntryType: entryType}
	oldNode := m.data.Insert(&Key{Key: key}, newEntry)
	delta := newEntry.size()
	if oldNode != nil {
		delta -= oldNode.Value().size()
	}
	// An overwrite with a smaller entry leaves the estimate unchanged so
	// that Size never decreases.
	if delta > 0 {
		m.sizeBytes += delta
	}
}

// Get looks up key. found is false if the key has never been written to
// this memtable. When found is true and entryType is core.EntryTypeDelete,
// the key is tombstoned here and the caller must treat it as absent
// rather than continuing to search older tables.
func (m *Memtable) Get(key []byte) (value []byte, entryType core.EntryType, found bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.data.Seek(&Key{Key: key})
	if !ok || !bytes.Equal(node.Key().Key, key) {
		return nil, 0, false
	}
	entry := node.Value()
	return entry.Value, entry.EntryType, true
}

// Size returns a monotone estimate, in bytes, of the memtable's resident
// size. Used only to decide when to rotate.
func (m *Memtable) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeBytes
}

// Len returns the number of distinct keys currently stored.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Len()
}

// Iterator yields every entry in ascending key order, including
// tombstones: the writer of a segment must preserve tombstones so that an
// older segment's live value for the same key does not resurface.
//
// The returned Iterator holds a read lock on the memtable until Close is
// called; callers must always close it, including on error paths.
func (m *Memtable) Iterator() *Iterator {
	m.mu.RLock()
	return &Iterator{mu: &m.mu, iter: m.data.NewIterator()}
}
