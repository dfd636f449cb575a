package engine

import (
	"fmt"
	"time"

	"github.com/ganjayant/lsmkv/memtable"
	"github.com/ganjayant/lsmkv/sstable"
)

// runFlushLoop drains the immutable memtable queue whenever signaled,
// grounded on the teacher's processImmutableMemtables/triggerPeriodicFlush
// pair: a buffered signal channel woken by maybeRotate, read until the
// queue is empty, then parked until the next signal or shutdown.
func (e *Engine) runFlushLoop() {
	defer e.wg.Done()
	for {
		for e.dequeueAndFlush() {
		}
		select {
		case <-e.flushChan:
		case <-e.shutdownChan:
			return
		}
	}
}

// dequeueAndFlush flushes the oldest queued immutable memtable, if any,
// reporting whether it found one to process.
func (e *Engine) dequeueAndFlush() bool {
	e.mu.Lock()
	if len(e.immutables) == 0 {
		e.mu.Unlock()
		return false
	}
	mt := e.immutables[0]
	e.immutables = e.immutables[1:]
	e.mu.Unlock()

	if err := e.flushMemtable(mt); err != nil {
		e.logger.Error("memtable flush failed", "error", err)
		// Put it back at the front of the queue so the data is not lost;
		// the next flush signal, or the final flush in Close, retries it.
		e.mu.Lock()
		e.immutables = append([]*memtable.Memtable{mt}, e.immutables...)
		e.mu.Unlock()
		return false
	}
	return true
}

// flushMemtable writes mt's contents, including tombstones, to a new
// on-disk segment and appends the opened handle to the segment list.
func (e *Engine) flushMemtable(mt *memtable.Memtable) error {
	if mt.Len() == 0 {
		return nil
	}

	base := e.nextSegmentBase(time.Now().UnixMilli())
	w, err := sstable.NewWriter(e.file, e.dataDir, base, e.compressor)
	if err != nil {
		return fmt.Errorf("create segment writer: %w", err)
	}

	it := mt.Iterator()
	var addErr error
	for it.Next() {
		if addErr = w.Add(it.Key(), it.Value(), it.EntryType()); addErr != nil {
			break
		}
	}
	it.Close()
	if addErr != nil {
		w.Abandon()
		return fmt.Errorf("write segment record: %w", addErr)
	}

	n, err := w.Finish()
	if err != nil {
		return fmt.Errorf("finish segment: %w", err)
	}

	h, err := sstable.OpenHandle(e.file, e.dataDir, base)
	if err != nil {
		return fmt.Errorf("open flushed segment: %w", err)
	}

	e.mu.Lock()
	e.segments = append(e.segments, h)
	segmentCount := len(e.segments)
	e.mu.Unlock()

	e.logger.Info("memtable flushed", "segment", base, "records", n)

	if segmentCount >= e.maxSegmentCount {
		e.signalCompaction()
	}
	return nil
}

// flushRemaining synchronously flushes every queued immutable memtable
// and the current mutable memtable. Called from Close after the
// background workers have stopped.
func (e *Engine) flushRemaining() error {
	for {
		e.mu.Lock()
		if len(e.immutables) == 0 {
			e.mu.Unlock()
			break
		}
		mt := e.immutables[0]
		e.immutables = e.immutables[1:]
		e.mu.Unlock()
		if err := e.flushMemtable(mt); err != nil {
			return fmt.Errorf("flush remaining immutable memtable: %w", err)
		}
	}

	e.mu.Lock()
	mt := e.mutable
	e.mutable = memtable.New()
	e.mu.Unlock()

	if err := e.flushMemtable(mt); err != nil {
		return fmt.Errorf("flush final mutable memtable: %w", err)
	}
	return nil
}
