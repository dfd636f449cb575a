package core

// CompressionType identifies the algorithm used to compress a segment's
// value payloads. It is stored in the segment's file header so a reader
// opened by a different process (or a later version of this binary) knows
// how to decompress without being told out of band.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// Compressor compresses and decompresses whole value payloads. Unlike a
// streaming codec, segment values are always fully buffered in memory
// before being written or after being read, so the interface trades the
// teacher's io.ReadCloser-returning Decompress for a plain byte slice.
type Compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
	Type() CompressionType
}

// CompressorForType returns the Compressor registered for t, or an error if
// t is not a known compression identifier. It is used by sstable.OpenHandle
// to pick the decompressor matching the segment's own header rather than
// whatever the engine is currently configured to write with.
func CompressorForType(t CompressionType) (Compressor, error) {
	c, ok := compressorRegistry[t]
	if !ok {
		return nil, ErrCorrupted
	}
	return c, nil
}

// RegisterCompressor makes c available to CompressorForType under its own
// Type(). Called from the compressors package's init functions so core has
// no import-time dependency on snappy/lz4/zstd.
func RegisterCompressor(c Compressor) {
	if compressorRegistry == nil {
		compressorRegistry = make(map[CompressionType]Compressor)
	}
	compressorRegistry[c.Type()] = c
}

var compressorRegistry map[CompressionType]Compressor
