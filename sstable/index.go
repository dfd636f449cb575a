package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/ganjayant/lsmkv/core"
	"github.com/ganjayant/lsmkv/sys"
)

// anchor is one sparse-index entry: the key of a data record and that
// record's byte offset in the data file.
type anchor struct {
	key    []byte
	offset uint64
}

// index is the in-memory sparse index for one segment, grounded on the
// teacher's sstable.Index (binary-search-over-anchors) but simplified
// from the teacher's block-pointer entries down to single-record anchors,
// since this format has no data blocks.
type index struct {
	anchors []anchor
}

// indexBuilder accumulates anchors as a writer emits data records, one
// anchor every core.KeysPerIndexEntry records starting at record 0.
type indexBuilder struct {
	anchors []anchor
	count   int
}

func (b *indexBuilder) observe(key []byte, offset uint64) {
	if b.count%core.KeysPerIndexEntry == 0 {
		b.anchors = append(b.anchors, anchor{key: append([]byte(nil), key...), offset: offset})
	}
	b.count++
}

// writeIndexFile serializes the accumulated anchors to path, preceded by
// a core.FileHeader and a count:u64 header, per spec.md §3.
func (b *indexBuilder) writeIndexFile(file sys.File, path string, compressorType core.CompressionType) error {
	f, err := file.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	header := core.NewFileHeader(compressorType)
	if err := binary.Write(f, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("write index header: %w", err)
	}

	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(len(b.anchors)))
	if _, err := f.Write(countBuf[:]); err != nil {
		return fmt.Errorf("write index count: %w", err)
	}

	for _, a := range b.anchors {
		entry := make([]byte, 0, 4+len(a.key)+8)
		entry = binary.LittleEndian.AppendUint32(entry, uint32(len(a.key)))
		entry = append(entry, a.key...)
		entry = binary.LittleEndian.AppendUint64(entry, a.offset)
		if _, err := f.Write(entry); err != nil {
			return fmt.Errorf("write index entry: %w", err)
		}
	}
	return f.Sync()
}

// loadIndex reads an index file fully into memory. Absence of a readable
// index marks the segment unusable for reads, per spec.md §4.2.
func loadIndex(file sys.File, path string) (*index, core.CompressionType, error) {
	f, err := file.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var header core.FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("read index header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return nil, 0, err
	}

	var countBuf [8]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: truncated index count", core.ErrCorrupted)
	}
	count := binary.LittleEndian.Uint64(countBuf[:])

	idx := &index{anchors: make([]anchor, 0, count)}
	for i := uint64(0); i < count; i++ {
		var klenBuf [4]byte
		if _, err := io.ReadFull(r, klenBuf[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated index entry", core.ErrCorrupted)
		}
		klen := binary.LittleEndian.Uint32(klenBuf[:])

		key := make([]byte, klen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated index key", core.ErrCorrupted)
		}

		var offsetBuf [8]byte
		if _, err := io.ReadFull(r, offsetBuf[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated index offset", core.ErrCorrupted)
		}
		offset := binary.LittleEndian.Uint64(offsetBuf[:])

		idx.anchors = append(idx.anchors, anchor{key: key, offset: offset})
	}

	return idx, header.CompressorType, nil
}

// seekOffset implements spec.md §4.2 steps 1-2: the byte offset to start
// scanning the data file from in order to find key, or (0, false) if the
// index is empty (caller should then return absent without reading).
func (idx *index) seekOffset(key []byte) (offset uint64, ok bool) {
	if len(idx.anchors) == 0 {
		return 0, false
	}
	if bytes.Compare(key, idx.anchors[0].key) < 0 {
		return 0, true
	}
	// Greatest anchor whose key is <= key.
	i := sort.Search(len(idx.anchors), func(i int) bool {
		return bytes.Compare(idx.anchors[i].key, key) > 0
	})
	return idx.anchors[i-1].offset, true
}
