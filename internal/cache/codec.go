package cache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Payload encodings as stored in the encoding column.
const (
	encodingRaw  = ""
	encodingZstd = "zstd"
)

// minCompressSize is the payload size below which compression is skipped.
const minCompressSize = 1024

// codec compresses audio blobs with zstd. Encoded audio (MP3, Opus) rarely
// shrinks much; a compressed copy is only kept when it is smaller.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// newCodec creates a codec; level 0 disables compression on write while
// still decoding compressed rows.
func newCodec(level int) (*codec, error) {
	c := &codec{}
	if level > 0 {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		c.encoder = enc
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	c.decoder = dec
	return c, nil
}

// encode returns the stored form of data and its encoding tag.
func (c *codec) encode(data []byte) ([]byte, string) {
	if c.encoder == nil || len(data) <= minCompressSize {
		return data, encodingRaw
	}
	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return data, encodingRaw
	}
	return compressed, encodingZstd
}

// decode reverses encode.
func (c *codec) decode(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case encodingRaw:
		return data, nil
	case encodingZstd:
		out, err := c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrCacheCorrupted, encoding)
	}
}

func (c *codec) close() {
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	c.decoder.Close()
}
