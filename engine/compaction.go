package engine

import (
	"bytes"
	"container/heap"
	"fmt"
	"sync"

	"github.com/ganjayant/lsmkv/core"
	"github.com/ganjayant/lsmkv/sstable"
)

// runCompactionLoop merges the oldest segments together once their count
// reaches the configured threshold, grounded on the teacher's dedicated
// compaction goroutine and signal channel, waking on either a signal from
// flush or shutdown.
func (e *Engine) runCompactionLoop() {
	defer e.wg.Done()
	for {
		for e.compactOnce() {
		}
		select {
		case <-e.compactionChan:
		case <-e.shutdownChan:
			return
		}
	}
}

// compactOnce merges the oldest maxSegmentCount segments, if there are at
// least that many, into a single new segment and reports whether it did
// so (so the caller can immediately check for more work).
//
// The original implementation this store is modeled on merged its oldest
// segments by iterating them front-to-back and keeping the first value
// seen per key — so, because the front of the list holds the oldest
// segment, an older write would survive a later overwrite during
// compaction. This merge instead always lets the value from a later
// (newer) segment replace an earlier one, which is the correct
// last-write-wins semantics for an LSM tree.
func (e *Engine) compactOnce() bool {
	e.mu.RLock()
	count := len(e.segments)
	e.mu.RUnlock()
	if count < e.maxSegmentCount {
		return false
	}

	e.mu.Lock()
	toCompact := make([]*sstable.Handle, e.maxSegmentCount)
	copy(toCompact, e.segments[:e.maxSegmentCount])
	e.mu.Unlock()

	for _, h := range toCompact {
		h.Retain()
	}
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			for _, h := range toCompact {
				h.Release()
			}
		})
	}
	defer release()

	merged, err := mergeSegments(toCompact)
	if err != nil {
		e.logger.Error("compaction merge failed", "error", err)
		return false
	}

	// Stamp the merged segment with the oldest detached segment's
	// timestamp, not the current time: base names sort lexically, and
	// recovery trusts that order to mean creation order. toCompact is the
	// oldest contiguous prefix of e.segments, so any segment left behind
	// is strictly newer than all of these; naming the merge after
	// time.Now() would instead sort it after those newer survivors,
	// making a restart read a stale pre-compaction value.
	base := e.nextSegmentBase(parseMillis(toCompact[0].Base()))
	w, err := sstable.NewWriter(e.file, e.dataDir, base, e.compressor)
	if err != nil {
		e.logger.Error("compaction writer failed", "error", err)
		return false
	}

	written := 0
	for _, entry := range merged {
		if entry.entryType == core.EntryTypeDelete {
			// This compaction set is the oldest contiguous prefix of all
			// segments, so no older data exists anywhere that a dropped
			// tombstone could wrongly unshadow.
			continue
		}
		if err := w.Add(entry.key, entry.value, entry.entryType); err != nil {
			w.Abandon()
			e.logger.Error("compaction write failed", "error", err)
			return false
		}
		written++
	}
	if _, err := w.Finish(); err != nil {
		e.logger.Error("compaction finish failed", "error", err)
		return false
	}

	newHandle, err := sstable.OpenHandle(e.file, e.dataDir, base)
	if err != nil {
		e.logger.Error("compaction open failed", "error", err)
		return false
	}

	e.mu.Lock()
	e.segments = append([]*sstable.Handle{newHandle}, e.segments[len(toCompact):]...)
	e.mu.Unlock()

	e.logger.Info("compaction completed", "segment", base, "merged_segments", len(toCompact), "records", written)

	// Drop this goroutine's own retained refs before deleting files:
	// DeleteFiles waits for the refcount to reach zero, and this goroutine's
	// own ref would otherwise never clear, deadlocking it forever.
	release()

	for _, h := range toCompact {
		if err := h.DeleteFiles(); err != nil {
			e.logger.Error("failed to remove compacted segment files", "path", h.DataPath(), "error", err)
		}
	}
	return true
}

type mergedEntry struct {
	key       []byte
	value     []byte
	entryType core.EntryType
}

// heapItem is one live segment iterator in the k-way merge.
type heapItem struct {
	it     *sstable.SegmentIterator
	source int // index into the original (oldest-first) segment slice
}

type mergeHeap []*heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	cmp := bytes.Compare(h[i].it.Key(), h[j].it.Key())
	if cmp != 0 {
		return cmp < 0
	}
	// Among equal keys, the item from the newer segment (higher source
	// index) must be popped first so it overwrites the older one's value.
	return h[i].source > h[j].source
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(*heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeSegments performs a k-way merge of segments (oldest first) into a
// single ascending, deduplicated sequence where, for each key, only the
// value from the newest contributing segment survives.
func mergeSegments(segments []*sstable.Handle) ([]mergedEntry, error) {
	h := &mergeHeap{}
	heap.Init(h)

	var iterators []*sstable.SegmentIterator
	defer func() {
		for _, it := range iterators {
			it.Close()
		}
	}()

	for i, seg := range segments {
		it, err := seg.NewSegmentIterator()
		if err != nil {
			return nil, fmt.Errorf("open segment iterator: %w", err)
		}
		iterators = append(iterators, it)
		if it.Next() {
			heap.Push(h, &heapItem{it: it, source: i})
		} else if it.Err() != nil {
			return nil, fmt.Errorf("read segment: %w", it.Err())
		}
	}

	var result []mergedEntry
	for h.Len() > 0 {
		top := heap.Pop(h).(*heapItem)
		key := top.it.Key()
		value := top.it.Value()
		entryType := top.it.EntryType()
		result = append(result, mergedEntry{key: key, value: value, entryType: entryType})

		// Discard any other heap entries sharing this key; they come from
		// older segments, so their values are shadowed by the one just
		// emitted.
		if top.it.Next() {
			heap.Push(h, top)
		} else if top.it.Err() != nil {
			return nil, fmt.Errorf("read segment: %w", top.it.Err())
		}
		for h.Len() > 0 && bytes.Equal((*h)[0].it.Key(), key) {
			stale := heap.Pop(h).(*heapItem)
			if stale.it.Next() {
				heap.Push(h, stale)
			} else if stale.it.Err() != nil {
				return nil, fmt.Errorf("read segment: %w", stale.it.Err())
			}
		}
	}
	return result, nil
}
