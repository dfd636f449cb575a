package compressors

import (
	"fmt"
	"strings"

	"github.com/ganjayant/lsmkv/core"
)

// ByName resolves a compression algorithm name from config.yaml ("none",
// "snappy", "lz4", "zstd") to a core.Compressor instance.
func ByName(name string) (core.Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return NoneCompressor{}, nil
	case "snappy":
		return NewSnappyCompressor(), nil
	case "lz4":
		return NewLZ4Compressor(), nil
	case "zstd":
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", name)
	}
}
