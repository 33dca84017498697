// Package vertex defines the packed record layout uploaded to the device.
//
// Every record is one or two vec4<f32> values in little-endian order, the
// same layout a WGSL storage buffer of
//
//	struct Vertex { position: vec4<f32> }
//
// or
//
//	struct Vertex { position: vec4<f32>, color: vec4<f32> }
//
// reads without padding.
package vertex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/image/math/f32"
)

// ErrUnknownFormat is returned for a format name or value that is not defined.
var ErrUnknownFormat = errors.New("vertex: unknown format")

// Fields is the number of numbers in one well-formed input line:
// x, y, z, intensity, r, g, b.
const Fields = 7

// Format selects which parts of a record are packed.
type Format uint32

// Formats.
const (
	// FormatPosition packs position only (16 bytes, w = 1).
	FormatPosition Format = iota

	// FormatPositionColor packs position and color (32 bytes). Color is
	// r/255, g/255, b/255 with intensity in the alpha slot.
	FormatPositionColor
)

// Valid reports whether f is a defined format.
func (f Format) Valid() bool {
	return f == FormatPosition || f == FormatPositionColor
}

// Stride returns the packed size of one record in bytes, or 0 for an
// unknown format.
func (f Format) Stride() uint64 {
	switch f {
	case FormatPosition:
		return 16
	case FormatPositionColor:
		return 32
	default:
		return 0
	}
}

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatPosition:
		return "position"
	case FormatPositionColor:
		return "position-color"
	default:
		return fmt.Sprintf("Format(%d)", uint32(f))
	}
}

// ParseFormat returns the format with the given name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "position":
		return FormatPosition, nil
	case "position-color", "color":
		return FormatPositionColor, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Vertex is one decoded record.
type Vertex struct {
	Position f32.Vec4
	Color    f32.Vec4
}

// FromFields builds a vertex from the numbers of one input line in
// x, y, z, intensity, r, g, b order. fields must hold at least Fields values.
func FromFields(fields []float32) Vertex {
	_ = fields[Fields-1]
	return Vertex{
		Position: f32.Vec4{fields[0], fields[1], fields[2], 1},
		Color:    f32.Vec4{fields[4] / 255, fields[5] / 255, fields[6] / 255, fields[3]},
	}
}

// Put writes v into dst in format f and returns the number of bytes
// written. dst must hold at least f.Stride() bytes.
func (v Vertex) Put(dst []byte, f Format) int {
	putVec4(dst, v.Position)
	if f == FormatPositionColor {
		putVec4(dst[16:], v.Color)
		return 32
	}
	return 16
}

// Decode reads one record of format f from src.
func Decode(src []byte, f Format) Vertex {
	v := Vertex{Position: getVec4(src)}
	if f == FormatPositionColor {
		v.Color = getVec4(src[16:])
	}
	return v
}

// DecodeAll reads every whole record of format f from src.
func DecodeAll(src []byte, f Format) []Vertex {
	stride := int(f.Stride())
	if stride == 0 {
		return nil
	}
	out := make([]Vertex, 0, len(src)/stride)
	for off := 0; off+stride <= len(src); off += stride {
		out = append(out, Decode(src[off:], f))
	}
	return out
}

func putVec4(dst []byte, v f32.Vec4) {
	_ = dst[15]
	for i := range 4 {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v[i]))
	}
}

func getVec4(src []byte) f32.Vec4 {
	_ = src[15]
	var v f32.Vec4
	for i := range 4 {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return v
}
