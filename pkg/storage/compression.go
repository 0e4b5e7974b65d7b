package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// Compressor packs series columns for the archive
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a new compressor. Levels 1-4 map to the zstd speed
// presets from fastest to best compression.
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// CompressKeys encodes ordering keys as a first value followed by
// delta-of-deltas, all zig-zag varints. Evenly spaced axes (commit 1, 2, 3...)
// collapse to runs of zero bytes before zstd sees them.
func (c *Compressor) CompressKeys(keys []types.OrderingKey) []byte {
	if len(keys) == 0 {
		return nil
	}

	buf := make([]byte, 0, len(keys)*2)
	buf = binary.AppendVarint(buf, int64(keys[0]))

	var prevDelta int64
	for i := 1; i < len(keys); i++ {
		delta := int64(keys[i] - keys[i-1])
		buf = binary.AppendVarint(buf, delta-prevDelta)
		prevDelta = delta
	}

	return c.encoder.EncodeAll(buf, make([]byte, 0, len(buf)))
}

// DecompressKeys reverses CompressKeys
func (c *Compressor) DecompressKeys(data []byte, count int) ([]types.OrderingKey, error) {
	if count == 0 {
		return []types.OrderingKey{}, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	keys := make([]types.OrderingKey, count)
	first, n := binary.Varint(raw)
	if n <= 0 {
		return nil, fmt.Errorf("corrupt key column at offset 0")
	}
	keys[0] = types.OrderingKey(first)
	raw = raw[n:]

	var prevDelta int64
	for i := 1; i < count; i++ {
		dod, n := binary.Varint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("corrupt key column at entry %d", i)
		}
		raw = raw[n:]

		delta := dod + prevDelta
		keys[i] = keys[i-1] + types.OrderingKey(delta)
		prevDelta = delta
	}

	return keys, nil
}

// CompressValues XORs each float with its predecessor and stores the result
// as a uvarint. Counters that rarely change produce mostly zero words.
func (c *Compressor) CompressValues(values []float64) []byte {
	if len(values) == 0 {
		return nil
	}

	buf := make([]byte, 0, len(values)*4)
	var prevBits uint64
	for _, v := range values {
		bits := math.Float64bits(v)
		buf = binary.AppendUvarint(buf, bits^prevBits)
		prevBits = bits
	}

	return c.encoder.EncodeAll(buf, make([]byte, 0, len(buf)))
}

// DecompressValues reverses CompressValues
func (c *Compressor) DecompressValues(data []byte, count int) ([]float64, error) {
	if count == 0 {
		return []float64{}, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	values := make([]float64, count)
	var prevBits uint64
	for i := 0; i < count; i++ {
		xor, n := binary.Uvarint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("corrupt value column at entry %d", i)
		}
		raw = raw[n:]

		bits := xor ^ prevBits
		values[i] = math.Float64frombits(bits)
		prevBits = bits
	}

	return values, nil
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
