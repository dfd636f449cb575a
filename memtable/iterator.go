package memtable

import (
	"sync"

	"github.com/INLOpen/skiplist"

	"github.com/ganjayant/lsmkv/core"
)

// Iterator walks a Memtable's entries in ascending key order. It is not
// safe for concurrent use by multiple goroutines and must be closed to
// release the memtable's read lock.
type Iterator struct {
	mu    *sync.RWMutex
	iter  *skiplist.Iterator[*Key, *Entry]
	begun bool
}

// Next advances to the next entry, returning false once exhausted.
func (it *Iterator) Next() bool {
	if !it.begun {
		it.begun = true
		return it.iter.First()
	}
	return it.iter.Next()
}

// Key returns the current entry's key.
func (it *Iterator) Key() []byte { return it.iter.Key().Key }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.iter.Value().Value }

// EntryType returns the current entry's type (put or delete).
func (it *Iterator) EntryType() core.EntryType { return it.iter.Value().EntryType }

// Close releases the memtable's read lock. Safe to call more than once.
func (it *Iterator) Close() {
	if it.mu == nil {
		return
	}
	it.mu.RUnlock()
	it.mu = nil
}
