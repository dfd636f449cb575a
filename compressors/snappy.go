package compressors

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/ganjayant/lsmkv/core"
)

// SnappyCompressor implements core.Compressor using Snappy, adapted from
// the teacher's compressors.SnappyCompressor. The teacher returns an
// io.ReadCloser from Decompress to fit a streaming WAL/block-cache path;
// segment values here are always fully materialized already, so Decompress
// returns the plain byte slice.
type SnappyCompressor struct{}

var _ core.Compressor = SnappyCompressor{}

func NewSnappyCompressor() SnappyCompressor { return SnappyCompressor{} }

func (SnappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (SnappyCompressor) Decompress(src []byte) ([]byte, error) {
	dst, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return dst, nil
}

func (SnappyCompressor) Type() core.CompressionType { return core.CompressionSnappy }

func init() { core.RegisterCompressor(SnappyCompressor{}) }
