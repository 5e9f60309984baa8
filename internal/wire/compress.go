package wire

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// A single shared encoder/decoder pair, initialized once, matching the
// teacher's package-level zstdEncoder pattern in internal/history/writer.go.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdOnce    sync.Once
)

func initZstd() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("wire: zstd encoder init: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("wire: zstd decoder init: %v", err))
	}
}

func compress(data []byte) []byte {
	zstdOnce.Do(initZstd)
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func decompress(data []byte) ([]byte, error) {
	zstdOnce.Do(initZstd)
	return zstdDecoder.DecodeAll(data, nil)
}
