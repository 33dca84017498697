// Package source opens point-cloud inputs and manages the raw record cache.
//
// Plain text files are memory-mapped read-only where the platform allows
// it. Files ending in .zst, .gz or .lz4 are decompressed into memory first.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a file's bytes are compressed.
type Compression uint8

// Compression kinds.
const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZSTD
	CompressionGzip
)

// String returns the compression name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// CompressionFor returns the compression implied by the file extension.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return CompressionZSTD
	case ".gz":
		return CompressionGzip
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Input is the text of a point cloud, held in memory until Close.
type Input struct {
	// Data is the uncompressed text. It is read-only and shared between
	// ingestion workers.
	Data []byte

	// Path is the file the input was read from.
	Path string

	// Compression is the compression the file was stored with.
	Compression Compression

	// Mapped reports whether Data is a memory mapping of the file.
	Mapped bool

	release func() error
}

// Close releases Data. Data must not be used afterwards.
func (in *Input) Close() error {
	if in == nil || in.release == nil {
		return nil
	}
	err := in.release()
	in.release = nil
	in.Data = nil
	return err
}

// Open reads the input at path.
func Open(path string) (*Input, error) {
	c := CompressionFor(path)
	if c == CompressionNone {
		in, err := mapFile(path)
		if err != nil {
			return nil, fmt.Errorf("source: open %s: %w", path, err)
		}
		return in, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := decompress(f, c)
	if err != nil {
		return nil, fmt.Errorf("source: decompress %s (%s): %w", path, c, err)
	}
	return &Input{Data: data, Path: path, Compression: c}, nil
}

func decompress(r io.Reader, c Compression) ([]byte, error) {
	switch c {
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)

	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)

	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(r))

	default:
		return io.ReadAll(r)
	}
}

// readWhole is the fallback used when a file cannot be mapped.
func readWhole(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Input{Data: data, Path: path}, nil
}
