package nrrd

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ReadPayload decodes the payload described by h from r. The reader must be
// positioned at the first payload byte (where ReadHeader left an attached
// stream, or the start of a detached data file).
//
// The returned buffer always holds exactly h.EstimateBytes() bytes in
// little-endian sample order.
func ReadPayload(h *Header, r io.Reader) ([]byte, error) {
	if h.Encoding == EncodingGzip {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		defer zr.Close()
		r = zr
	}

	buf := make([]byte, h.EstimateBytes())
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: payload short read: %v", ErrTruncated, err)
	}

	if h.BigEndian && h.Type.ItemSize() == 2 {
		swap16(buf)
	}
	return buf, nil
}

func swap16(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}
