package sstable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/ganjayant/lsmkv/core"
)

// Each data-file record is:
//
//	checksum:u32 | klen:u32 | key | entryType:u8 | vlen:u32 | value
//
// checksum is the CRC32 (IEEE) of everything that follows it in the
// record, so a reader can detect a record torn by a crash mid-write —
// grounded on the teacher's use of hash/crc32 in sstable/index.go and
// sstable/writer.go. vlen/value describe the on-disk payload, which may
// be compressed; the record does not carry the decompressed length, so
// decompression must be able to determine the output size on its own
// (true of snappy, lz4's block framing here, and zstd).
type recordHeader struct {
	Checksum  uint32
	KeyLen    uint32
	EntryType core.EntryType
	ValueLen  uint32
}

// encodeRecord appends one serialized record to dst and returns the
// extended slice.
func encodeRecord(dst []byte, key, value []byte, entryType core.EntryType) []byte {
	body := make([]byte, 0, 4+len(key)+1+4+len(value))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(key)))
	body = append(body, key...)
	body = append(body, byte(entryType))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(value)))
	body = append(body, value...)

	checksum := crc32.ChecksumIEEE(body)
	dst = binary.LittleEndian.AppendUint32(dst, checksum)
	dst = append(dst, body...)
	return dst
}

// decodeRecordAt reads one record starting at the current position of r.
// io.EOF is returned (unwrapped) when r is exhausted exactly at a record
// boundary, matching the "EOF before a match" case in spec.md §4.2 step 4.
func decodeRecordAt(r io.Reader) (key, value []byte, entryType core.EntryType, err error) {
	var checksumBuf [4]byte
	if _, err := io.ReadFull(r, checksumBuf[:]); err != nil {
		return nil, nil, 0, err
	}
	checksum := binary.LittleEndian.Uint32(checksumBuf[:])

	var klenBuf [4]byte
	if _, err := io.ReadFull(r, klenBuf[:]); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: truncated record", core.ErrCorrupted)
	}
	klen := binary.LittleEndian.Uint32(klenBuf[:])

	key = make([]byte, klen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: truncated key", core.ErrCorrupted)
	}

	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: truncated record", core.ErrCorrupted)
	}
	entryType = core.EntryType(typeBuf[0])

	var vlenBuf [4]byte
	if _, err := io.ReadFull(r, vlenBuf[:]); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: truncated record", core.ErrCorrupted)
	}
	vlen := binary.LittleEndian.Uint32(vlenBuf[:])

	value = make([]byte, vlen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: truncated value", core.ErrCorrupted)
	}

	body := make([]byte, 0, 4+len(key)+1+4+len(value))
	body = binary.LittleEndian.AppendUint32(body, klen)
	body = append(body, key...)
	body = append(body, byte(entryType))
	body = binary.LittleEndian.AppendUint32(body, vlen)
	body = append(body, value...)
	if got := crc32.ChecksumIEEE(body); got != checksum {
		return nil, nil, 0, fmt.Errorf("%w: checksum mismatch", core.ErrCorrupted)
	}

	return key, value, entryType, nil
}
