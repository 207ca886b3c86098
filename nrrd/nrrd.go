// Package nrrd implements the subset of the NRRD ("nearly raw raster data")
// format needed to drive a volumetric timeline: header-only metadata reads,
// raw and gzip payload decoding, and the custom key/value fields that carry
// the 5D ordering metadata (group index, cycle index, cycle length, period).
//
// Payload buffers are always returned in little-endian byte order; 16-bit
// samples from big-endian files are swapped during decode.
package nrrd

import (
	"errors"
	"fmt"
)

// DataType identifies the per-sample pixel type of a volume.
type DataType int

const (
	// Uint8 is an unsigned 8-bit sample.
	Uint8 DataType = iota
	// Uint16 is an unsigned 16-bit sample.
	Uint16
	// Int16 is a signed 16-bit sample.
	Int16
)

// ItemSize returns the number of bytes one sample occupies.
func (t DataType) ItemSize() int64 {
	if t == Uint8 {
		return 1
	}
	return 2
}

// ScalarRange returns the lowest and highest representable sample values.
func (t DataType) ScalarRange() (float64, float64) {
	switch t {
	case Uint8:
		return 0, 255
	case Uint16:
		return 0, 65535
	case Int16:
		return -32768, 32767
	}
	panic(fmt.Sprintf("nrrd: unknown data type %d", int(t)))
}

func (t DataType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// Encoding identifies how the payload bytes are stored on disk.
type Encoding int

const (
	// EncodingRaw stores samples verbatim.
	EncodingRaw Encoding = iota
	// EncodingGzip stores the sample stream gzip-compressed.
	EncodingGzip
)

func (e Encoding) String() string {
	if e == EncodingGzip {
		return "gzip"
	}
	return "raw"
}

var (
	// ErrBadMagic is returned when the stream does not begin with an NRRD
	// magic line.
	ErrBadMagic = errors.New("not an NRRD file")

	// ErrTruncated is returned when the stream ends before the expected
	// amount of header or payload data was read.
	ErrTruncated = errors.New("blank or corrupt file")
)

// Header holds the parsed NRRD header fields this package understands.
//
// Sizes is always [C,X,Y,Z]; channel-less 3-D images are normalized to a
// single channel during parsing.
type Header struct {
	Type      DataType
	Sizes     [4]int64
	Scale     [3]float64
	Origin    [3]float64
	Encoding  Encoding
	BigEndian bool

	// DataFile names a detached payload file, relative to the header
	// location. Empty for attached payloads.
	DataFile string

	// GroupIndex is the slow time-axis index (acquisition session).
	GroupIndex int
	// CycleIndex is the fast time-axis index within the group.
	CycleIndex int
	// CycleLength is the number of fast-axis entries in this group.
	CycleLength int
	// Period is the duration of one fast-axis step.
	Period float64
	// PeriodUnit names the unit Period is expressed in.
	PeriodUnit string
	// Timestamp is an optional acquisition timestamp for the group.
	Timestamp string
}

// Channels returns the number of color channels.
func (h *Header) Channels() int {
	return int(h.Sizes[0])
}

// Voxels returns the spatial sample count, channels excluded.
func (h *Header) Voxels() int64 {
	return h.Sizes[1] * h.Sizes[2] * h.Sizes[3]
}

// EstimateBytes returns the size of the decoded payload in bytes.
func (h *Header) EstimateBytes() int64 {
	return h.Type.ItemSize() * h.Sizes[0] * h.Voxels()
}

// SameShape reports whether another header describes a payload of the same
// type and dimensions. Used to detect files that changed between the header
// read and the payload read.
func (h *Header) SameShape(o *Header) bool {
	return h.Type == o.Type && h.Sizes == o.Sizes
}
