package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/ganjayant/lsmkv/core"
	"github.com/ganjayant/lsmkv/sys"
)

// Writer builds one on-disk segment from a strictly increasing stream of
// keys, grounded on the teacher's sstable.Writer: write through a temp
// file, fsync, then atomically rename into place, so a crash mid-write
// never leaves a half-written segment visible to recovery.
type Writer struct {
	file       sys.File
	dataPath   string
	tmpPath    string
	compressor core.Compressor

	data    sys.FileHandle
	builder indexBuilder

	// offset tracks each record's position relative to the first record,
	// not the absolute file offset; Handle.Get adds back the header size
	// before seeking.
	offset   uint64
	lastKey  []byte
	hasLast  bool
	finished bool
}

// NewWriter creates the temporary data file for a new segment named base
// (without suffix) inside dir.
func NewWriter(file sys.File, dir, base string, compressor core.Compressor) (*Writer, error) {
	dataPath := filepath.Join(dir, base+core.DataFileSuffix)
	tmpPath := dataPath + ".tmp"

	f, err := file.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create segment data temp file: %w", err)
	}

	header := core.NewFileHeader(compressor.Type())
	if err := binary.Write(f, binary.LittleEndian, &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write segment header: %w", err)
	}

	return &Writer{
		file:       file,
		dataPath:   dataPath,
		tmpPath:    tmpPath,
		compressor: compressor,
		data:       f,
	}, nil
}

// Add appends one record. Keys must be supplied in strictly increasing
// order; Add returns an error, and writes nothing, for a key that is not
// greater than the previously added one.
func (w *Writer) Add(key, value []byte, entryType core.EntryType) error {
	if w.finished {
		return fmt.Errorf("sstable: Add called after Finish")
	}
	if w.hasLast && bytes.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("sstable: out-of-order key %q after %q", key, w.lastKey)
	}

	storedValue := value
	if entryType == core.EntryTypePut && len(value) > 0 {
		compressed, err := w.compressor.Compress(value)
		if err != nil {
			return fmt.Errorf("compress value: %w", err)
		}
		storedValue = compressed
	}

	w.builder.observe(key, w.offset)

	buf := encodeRecord(nil, key, storedValue, entryType)
	if _, err := w.data.Write(buf); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.offset += uint64(len(buf))

	w.lastKey = append(w.lastKey[:0], key...)
	w.hasLast = true
	return nil
}

// Finish syncs the data file, atomically renames it into its final path,
// and then writes the sparse index file. It returns the number of
// records written.
func (w *Writer) Finish() (int, error) {
	if w.finished {
		return 0, fmt.Errorf("sstable: Finish called twice")
	}
	w.finished = true

	if err := w.data.Sync(); err != nil {
		w.data.Close()
		return 0, fmt.Errorf("sync segment data: %w", err)
	}
	if err := w.data.Close(); err != nil {
		return 0, fmt.Errorf("close segment data: %w", err)
	}
	if err := w.file.Rename(w.tmpPath, w.dataPath); err != nil {
		return 0, fmt.Errorf("rename segment data into place: %w", err)
	}

	indexPath := w.dataPath[:len(w.dataPath)-len(core.DataFileSuffix)] + core.IndexFileSuffix
	if err := w.builder.writeIndexFile(w.file, indexPath, w.compressor.Type()); err != nil {
		return 0, err
	}

	return w.builder.count, nil
}

// Abandon discards a writer's temp file after an error, best-effort.
func (w *Writer) Abandon() {
	if w.finished {
		return
	}
	w.finished = true
	w.data.Close()
	w.file.Remove(w.tmpPath)
}
