package compressors

import (
	"fmt"

	lz4 "github.com/pierrec/lz4/v4"

	"github.com/ganjayant/lsmkv/core"
)

// LZ4Compressor implements core.Compressor using block-mode LZ4, adapted
// from the teacher's compressors.LZ4Compressor.
type LZ4Compressor struct{}

var _ core.Compressor = LZ4Compressor{}

func NewLZ4Compressor() LZ4Compressor { return LZ4Compressor{} }

func (LZ4Compressor) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible input: CompressBlock reports 0 bytes written
		// rather than emitting a larger-than-input block.
		return append([]byte{0}, src...), nil
	}
	return append([]byte{1}, dst[:n]...), nil
}

func (LZ4Compressor) Decompress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	compressed, payload := src[0] == 1, src[1:]
	if !compressed {
		return payload, nil
	}
	dst := make([]byte, 4*len(payload)+64)
	for {
		n, err := lz4.UncompressBlock(payload, dst)
		if err == nil {
			return dst[:n], nil
		}
		if len(dst) > 1<<30 {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		dst = make([]byte, len(dst)*2)
	}
}

func (LZ4Compressor) Type() core.CompressionType { return core.CompressionLZ4 }

func init() { core.RegisterCompressor(LZ4Compressor{}) }
