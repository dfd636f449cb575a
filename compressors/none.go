package compressors

import "github.com/ganjayant/lsmkv/core"

// NoneCompressor implements core.Compressor without performing any
// compression. It is the default so that a segment written with no
// compression configured is still self-describing.
type NoneCompressor struct{}

var _ core.Compressor = NoneCompressor{}

func (NoneCompressor) Compress(src []byte) ([]byte, error) { return src, nil }

func (NoneCompressor) Decompress(src []byte) ([]byte, error) { return src, nil }

func (NoneCompressor) Type() core.CompressionType { return core.CompressionNone }

func init() { core.RegisterCompressor(NoneCompressor{}) }
