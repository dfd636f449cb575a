// Package sstable implements the on-disk sorted segment format: an
// append-only data file of (key, value, entry type) records in strictly
// increasing key order, paired with a sparse index file used to avoid
// scanning the whole segment on lookup. Grounded throughout on the
// teacher's sstable package (Writer, Index, and reference-counted
// Handle), adapted from the teacher's block-based layout to this
// format's flat, per-record layout, since spec.md's Non-goals exclude
// block caches and bloom filters that would otherwise justify blocking.
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/ganjayant/lsmkv/core"
	"github.com/ganjayant/lsmkv/sys"
)

// Handle is a reference-counted, open reader for one on-disk segment.
// Retain/Release bracket every read so that a concurrent DeleteFiles
// (issued by compaction once a merged replacement segment is durable)
// waits for in-flight readers to finish before unlinking the segment's
// files, satisfying the hand-off invariant in spec.md §5.
type Handle struct {
	file sys.File

	dataPath  string
	indexPath string

	idx        *index
	compressor core.Compressor
	dataStart  int64

	refs     atomic.Int64
	released chan struct{}
}

// OpenHandle loads a segment's index fully into memory and prepares it
// for reads, per spec.md §4.2 "load_index". The data file itself is
// reopened per Get call rather than held open, matching the teacher's
// choice to keep Handle cheap to hold in a segment list.
func OpenHandle(file sys.File, dir, base string) (*Handle, error) {
	dataPath := filepath.Join(dir, base+core.DataFileSuffix)
	indexPath := filepath.Join(dir, base+core.IndexFileSuffix)

	idx, compressorType, err := loadIndex(file, indexPath)
	if err != nil {
		return nil, fmt.Errorf("load index for segment %s: %w", base, err)
	}

	compressor, err := core.CompressorForType(compressorType)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", base, err)
	}

	f, err := file.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open segment data %s: %w", base, err)
	}
	var header core.FileHeader
	headerErr := binary.Read(f, binary.LittleEndian, &header)
	f.Close()
	if headerErr != nil {
		return nil, fmt.Errorf("read segment data header %s: %w", base, headerErr)
	}
	if err := header.Validate(); err != nil {
		return nil, fmt.Errorf("segment %s: %w", base, err)
	}

	h := &Handle{
		file:       file,
		dataPath:   dataPath,
		indexPath:  indexPath,
		idx:        idx,
		compressor: compressor,
		dataStart:  int64(header.Size()),
		released:   make(chan struct{}, 1),
	}
	return h, nil
}

// Retain increments the handle's reference count. Every successful
// Retain must be matched by exactly one Release.
func (h *Handle) Retain() {
	h.refs.Add(1)
}

// Release decrements the handle's reference count.
func (h *Handle) Release() {
	if h.refs.Add(-1) == 0 {
		select {
		case h.released <- struct{}{}:
		default:
		}
	}
}

// Get looks up key in this segment, per spec.md §4.2: binary-search the
// sparse index to the greatest anchor at or before key, then scan
// forward decoding records until a match, a key greater than the target,
// or end of file. The caller must Retain the handle before calling Get
// and Release it afterward.
func (h *Handle) Get(key []byte) (value []byte, entryType core.EntryType, found bool, err error) {
	offset, ok := h.idx.seekOffset(key)
	if !ok {
		return nil, 0, false, nil
	}

	f, err := h.file.Open(h.dataPath)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open segment data: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(h.dataStart+int64(offset), io.SeekStart); err != nil {
		return nil, 0, false, fmt.Errorf("seek segment data: %w", err)
	}
	r := bufio.NewReader(f)

	for {
		recKey, recValue, recType, err := decodeRecordAt(r)
		if err == io.EOF {
			return nil, 0, false, nil
		}
		if err != nil {
			return nil, 0, false, fmt.Errorf("decode record in segment: %w", err)
		}

		cmp := bytes.Compare(recKey, key)
		if cmp < 0 {
			continue
		}
		if cmp > 0 {
			return nil, 0, false, nil
		}

		if recType == core.EntryTypePut && len(recValue) > 0 {
			decompressed, err := h.compressor.Decompress(recValue)
			if err != nil {
				return nil, 0, false, fmt.Errorf("decompress value: %w", err)
			}
			recValue = decompressed
		}
		return recValue, recType, true, nil
	}
}

// NewSegmentIterator opens a full ascending scan of this segment's data
// file, used by compaction to merge segments. The returned iterator must
// be closed.
func (h *Handle) NewSegmentIterator() (*SegmentIterator, error) {
	f, err := h.file.Open(h.dataPath)
	if err != nil {
		return nil, fmt.Errorf("open segment data: %w", err)
	}
	if _, err := f.Seek(h.dataStart, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek segment data: %w", err)
	}
	return &SegmentIterator{f: f, r: bufio.NewReader(f), compressor: h.compressor}, nil
}

// DeleteFiles waits for the reference count to drain to zero, then
// unlinks the segment's data and index files. Must only be called once
// the handle has been removed from the engine's segment list, so no new
// Retain can occur after this call begins waiting.
func (h *Handle) DeleteFiles() error {
	for h.refs.Load() > 0 {
		<-h.released
	}
	if err := h.file.Remove(h.dataPath); err != nil {
		return fmt.Errorf("remove segment data: %w", err)
	}
	if err := h.file.Remove(h.indexPath); err != nil {
		return fmt.Errorf("remove segment index: %w", err)
	}
	return nil
}

// DataPath returns the segment's data file path, for logging.
func (h *Handle) DataPath() string { return h.dataPath }

// Base returns the segment's base name (directory and file suffix
// stripped), the same string OpenHandle was given.
func (h *Handle) Base() string {
	return strings.TrimSuffix(filepath.Base(h.dataPath), core.DataFileSuffix)
}

// SegmentIterator yields every record in a segment's data file in
// ascending key order, decompressing values as it goes.
type SegmentIterator struct {
	f          sys.FileHandle
	r          *bufio.Reader
	compressor core.Compressor

	key       []byte
	value     []byte
	entryType core.EntryType
	err       error
}

// Next advances to the next record, returning false at EOF or error.
// Check Err after Next returns false to distinguish the two.
func (it *SegmentIterator) Next() bool {
	key, value, entryType, err := decodeRecordAt(it.r)
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = fmt.Errorf("decode record in segment: %w", err)
		return false
	}

	if entryType == core.EntryTypePut && len(value) > 0 {
		decompressed, derr := it.compressor.Decompress(value)
		if derr != nil {
			it.err = fmt.Errorf("decompress value: %w", derr)
			return false
		}
		value = decompressed
	}

	it.key, it.value, it.entryType = key, value, entryType
	return true
}

func (it *SegmentIterator) Key() []byte             { return it.key }
func (it *SegmentIterator) Value() []byte           { return it.value }
func (it *SegmentIterator) EntryType() core.EntryType { return it.entryType }
func (it *SegmentIterator) Err() error              { return it.err }

// Close releases the underlying file descriptor.
func (it *SegmentIterator) Close() error { return it.f.Close() }
