// Package blob reads device tree blobs that may be zstd or lz4-frame
// compressed. The format is detected from the leading magic.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// MaxSize bounds a decompressed blob.
const MaxSize = 64 << 20

type Format uint8

const (
	Raw Format = iota
	Zstd
	LZ4
)

func (f Format) String() string {
	switch f {
	case Raw:
		return "raw"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

var (
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

var ErrTooLarge = errors.New("blob: decompressed size exceeds limit")

// Detect reports the compression of data.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, magicZstd):
		return Zstd
	case bytes.HasPrefix(data, magicLZ4):
		return LZ4
	}
	return Raw
}

// Decode returns the uncompressed blob. Raw input is returned as is.
func Decode(data []byte) ([]byte, error) {
	switch Detect(data) {
	case Zstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxSize))
		if err != nil {
			return nil, fmt.Errorf("blob: zstd: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("blob: zstd: %w", err)
		}
		if len(out) > MaxSize {
			return nil, ErrTooLarge
		}
		return out, nil
	case LZ4:
		r := io.LimitReader(lz4.NewReader(bytes.NewReader(data)), MaxSize+1)
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("blob: lz4: %w", err)
		}
		if len(out) > MaxSize {
			return nil, ErrTooLarge
		}
		return out, nil
	}
	return data, nil
}

// Load reads and decodes the blob at path.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
