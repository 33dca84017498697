package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/gogpu/pointcloud/vertex"
)

// ErrBadCache is returned for a cache file that is corrupt, stale, or was
// written for a different record format.
var ErrBadCache = errors.New("source: bad raw cache")

// CacheSuffix is appended to the input path to name its cache file.
const CacheSuffix = ".data"

const (
	cacheMagic   = "PCLD"
	cacheVersion = 1
)

// cacheHeader is the fixed 32-byte little-endian prefix of a cache file.
type cacheHeader struct {
	Magic       [4]byte
	Version     uint16
	Format      uint16
	Compression uint8
	_           [7]byte
	Records     uint64
	RawSize     uint64
}

// Cache is a decoded cache file.
type Cache struct {
	Format  vertex.Format
	Records uint64

	// Payload holds Records packed records.
	Payload []byte
}

// CachePath returns the cache file path for an input path.
func CachePath(path string) string {
	return path + CacheSuffix
}

// ReadCache reads the cache for the input at path. It returns an error
// matching os.ErrNotExist when there is no cache, and ErrBadCache when the
// cache is older than the input, does not decode, or holds a format other
// than want.
func ReadCache(path string, want vertex.Format) (*Cache, error) {
	cachePath := CachePath(path)
	ci, err := os.Stat(cachePath)
	if err != nil {
		return nil, err
	}
	if si, err := os.Stat(path); err == nil && si.ModTime().After(ci.ModTime()) {
		return nil, fmt.Errorf("%w: %s is older than its input", ErrBadCache, cachePath)
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var h cacheHeader
	if err := binary.Read(f, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadCache, err)
	}
	if string(h.Magic[:]) != cacheMagic || h.Version != cacheVersion {
		return nil, fmt.Errorf("%w: %s has magic %q version %d", ErrBadCache, cachePath, h.Magic[:], h.Version)
	}
	format := vertex.Format(h.Format)
	if format != want {
		return nil, fmt.Errorf("%w: %s holds %s records, want %s", ErrBadCache, cachePath, format, want)
	}
	if h.Records == 0 || h.RawSize != h.Records*format.Stride() {
		return nil, fmt.Errorf("%w: %s claims %d records in %d bytes", ErrBadCache, cachePath, h.Records, h.RawSize)
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	payload, err := decodeCacheBody(body, Compression(h.Compression), h.RawSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadCache, cachePath, err)
	}

	return &Cache{Format: format, Records: h.Records, Payload: payload}, nil
}

func decodeCacheBody(body []byte, c Compression, rawSize uint64) ([]byte, error) {
	var payload []byte
	switch c {
	case CompressionNone:
		payload = body

	case CompressionLZ4:
		payload = make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, payload)
		if err != nil {
			return nil, err
		}
		payload = payload[:n]

	case CompressionZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		payload, err = dec.DecodeAll(body, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown compression %s", c)
	}

	if uint64(len(payload)) != rawSize {
		return nil, fmt.Errorf("payload is %d bytes, header says %d", len(payload), rawSize)
	}
	return payload, nil
}

// WriteCache writes payload as the cache for the input at path. The file
// is written to a temporary name and renamed into place. Gzip is not a
// cache compression; it is stored as CompressionNone.
func WriteCache(path string, format vertex.Format, records uint64, payload []byte, c Compression) error {
	if records*format.Stride() != uint64(len(payload)) {
		return fmt.Errorf("source: cache payload is %d bytes, want %d records of %d",
			len(payload), records, format.Stride())
	}

	body, c, err := encodeCacheBody(payload, c)
	if err != nil {
		return fmt.Errorf("source: compress cache: %w", err)
	}

	h := cacheHeader{
		Version:     cacheVersion,
		Format:      uint16(format),
		Compression: uint8(c),
		Records:     records,
		RawSize:     uint64(len(payload)),
	}
	copy(h.Magic[:], cacheMagic)

	var buf bytes.Buffer
	buf.Grow(binary.Size(h) + len(body))
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf.Write(body)

	cachePath := CachePath(path)
	tmp, err := os.CreateTemp(filepath.Dir(cachePath), filepath.Base(cachePath)+".tmp*")
	if err != nil {
		return fmt.Errorf("source: write cache: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("source: write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("source: write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("source: write cache: %w", err)
	}
	return nil
}

func encodeCacheBody(payload []byte, c Compression) ([]byte, Compression, error) {
	switch c {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			// Incompressible.
			return payload, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil

	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, 0, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, nil), CompressionZSTD, nil

	default:
		return payload, CompressionNone, nil
	}
}
