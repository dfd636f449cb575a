package core

import (
	"encoding/binary"
	"fmt"
)

// This file centralizes constants and helpers for the on-disk segment
// format, mirroring the teacher's core/format.go grouping of magic
// numbers and file-naming helpers in one place.

const (
	// SegmentMagic identifies a segment data or index file in its header.
	SegmentMagic uint32 = 0x53535442 // "SSTB"
	// FormatVersion is the current on-disk format version.
	FormatVersion uint8 = 1

	// KeysPerIndexEntry is the sparse-index anchor interval: one index
	// entry is written for every KeysPerIndexEntry data records, starting
	// at record 0.
	KeysPerIndexEntry = 10

	// DataFileSuffix and IndexFileSuffix name a segment's two files.
	DataFileSuffix  = ".data"
	IndexFileSuffix = ".index"
)

// FileHeader precedes the body of every segment data and index file. It
// lets a reader validate the file kind and pick the right decompressor
// without being told out of band, grounded on the teacher's
// core.FileHeader/core.NewFileHeader pattern.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CompressorType CompressionType
}

// Size returns the encoded size of a FileHeader in bytes.
func (h FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader builds a header for a freshly created segment file.
func NewFileHeader(compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          SegmentMagic,
		Version:        FormatVersion,
		CompressorType: compressorType,
	}
}

// Validate checks that a header read back off disk matches what this
// binary knows how to read.
func (h FileHeader) Validate() error {
	if h.Magic != SegmentMagic {
		return fmt.Errorf("%w: bad magic %#x", ErrCorrupted, h.Magic)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrCorrupted, h.Version)
	}
	return nil
}

// SegmentBaseName formats a segment's shared base name from its creation
// timestamp and a per-process monotonic disambiguator. Millisecond
// timestamps can collide under rapid flush/compaction (spec.md §9); the
// zero-padded sequence suffix breaks the tie and, because both fields are
// fixed-width, lexical sort of the resulting name also sorts by creation
// order.
func SegmentBaseName(unixMillis int64, seq uint64) string {
	return fmt.Sprintf("sstable_%020d_%010d", unixMillis, seq)
}
