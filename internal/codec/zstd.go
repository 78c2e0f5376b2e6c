package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

type zstdStage struct {
	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	initErr error
}

// Zstd returns a compression stage. Encoders are created lazily and
// reused; EncodeAll and DecodeAll are safe for concurrent use.
func Zstd() Stage {
	return &zstdStage{}
}

func (z *zstdStage) Name() string { return "zstd" }

func (z *zstdStage) init() error {
	z.once.Do(func() {
		z.encoder, z.initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if z.initErr != nil {
			return
		}
		z.decoder, z.initErr = zstd.NewReader(nil)
	})
	return z.initErr
}

func (z *zstdStage) Encode(src []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, err
	}
	return z.encoder.EncodeAll(src, nil), nil
}

func (z *zstdStage) Decode(src []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, err
	}
	return z.decoder.DecodeAll(src, nil)
}
