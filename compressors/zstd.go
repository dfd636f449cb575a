package compressors

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ganjayant/lsmkv/core"
)

// ZstdCompressor implements core.Compressor using zstd, adapted from the
// teacher's compressors.ZstdCompressor. Encoders and decoders are pooled
// because constructing either allocates internal tables that are
// expensive to redo on every flush or compaction record.
type ZstdCompressor struct {
	encoders sync.Pool
	decoders sync.Pool
}

var _ core.Compressor = (*ZstdCompressor)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{
		encoders: sync.Pool{New: func() any {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				return nil
			}
			return enc
		}},
		decoders: sync.Pool{New: func() any {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return nil
			}
			return dec
		}},
	}
}

func (c *ZstdCompressor) Compress(src []byte) ([]byte, error) {
	v := c.encoders.Get()
	enc, ok := v.(*zstd.Encoder)
	if !ok || enc == nil {
		return nil, fmt.Errorf("zstd: no encoder available")
	}
	defer c.encoders.Put(enc)
	return enc.EncodeAll(src, nil), nil
}

func (c *ZstdCompressor) Decompress(src []byte) ([]byte, error) {
	v := c.decoders.Get()
	dec, ok := v.(*zstd.Decoder)
	if !ok || dec == nil {
		return nil, fmt.Errorf("zstd: no decoder available")
	}
	defer c.decoders.Put(dec)
	dst, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return dst, nil
}

func (c *ZstdCompressor) Type() core.CompressionType { return core.CompressionZSTD }

func init() { core.RegisterCompressor(NewZstdCompressor()) }
