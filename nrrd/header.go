package nrrd

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// maxStringField caps the length of free-form metadata strings so a
// malformed file cannot smuggle arbitrary blobs into labels.
const maxStringField = 20

// ReadHeader parses an NRRD header from r, stopping at the blank line that
// separates the header from an attached payload. After a successful return
// the reader is positioned at the first payload byte.
//
// EOF before the blank line is accepted so that detached headers (.nhdr
// files, which simply end) parse cleanly.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	magic, err := readLine(r)
	if err != nil {
		return nil, ErrTruncated
	}
	if len(magic) != 8 || !strings.HasPrefix(magic, "NRRD000") ||
		magic[7] < '1' || magic[7] > '5' {
		return nil, ErrBadMagic
	}

	p := &parser{
		h: Header{
			Scale:       [3]float64{1, 1, 1},
			Period:      1,
			PeriodUnit:  "sec",
			CycleLength: 1,
		},
	}

	for {
		line, err := readLine(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ErrTruncated
		}
		if line == "" {
			break // end of header, payload follows
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.field(line); err != nil {
			return nil, err
		}
	}

	return p.finish()
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type parser struct {
	h Header

	haveType  bool
	haveSizes bool
	dimension int

	// "scan index" is the deprecated spelling of "group index"; the latter
	// wins when both are present.
	scanIndex      int
	haveScanIndex  bool
	haveGroupIndex bool
}

// field parses one "field: value" or "key:=value" header line.
func (p *parser) field(line string) error {
	var key, value string
	if i := strings.Index(line, ":="); i >= 0 {
		key, value = line[:i], line[i+2:]
	} else if i := strings.Index(line, ": "); i >= 0 {
		key, value = line[:i], line[i+2:]
	} else if strings.HasSuffix(line, ":") {
		key, value = strings.TrimSuffix(line, ":"), ""
	} else {
		return fmt.Errorf("invalid header field: %q", line)
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "type":
		return p.parseType(value)
	case "dimension":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid header field: dimension %q", value)
		}
		p.dimension = n
	case "sizes":
		return p.parseSizes(value)
	case "encoding":
		return p.parseEncoding(value)
	case "endian":
		switch value {
		case "big":
			p.h.BigEndian = true
		case "little":
			p.h.BigEndian = false
		default:
			return fmt.Errorf("invalid header field: endian %q", value)
		}
	case "space directions":
		return p.parseDirections(value)
	case "space origin":
		v, err := parseVector(value)
		if err != nil {
			return fmt.Errorf("invalid header field: space origin %q", value)
		}
		p.h.Origin = v
	case "data file", "datafile":
		p.h.DataFile = value
	case "group index":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("non-integer group index")
		}
		p.h.GroupIndex = n
		p.haveGroupIndex = true
	case "scan index":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("non-integer scan index")
		}
		p.scanIndex = n
		p.haveScanIndex = true
	case "time index":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("non-integer time index")
		}
		p.h.CycleIndex = n
	case "n times":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("non-integer number of timepoints")
		}
		p.h.CycleLength = n
	case "period":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("non-numeric t1 sample period")
		}
		p.h.Period = f
	case "period unit":
		p.h.PeriodUnit = value
	case "timestamp":
		p.h.Timestamp = value
	}
	// Unrecognized fields are ignored; NRRD headers routinely carry fields
	// (kinds, space, content, ...) that do not affect decoding here.
	return nil
}

func (p *parser) parseType(value string) error {
	switch strings.ToLower(value) {
	case "uchar", "unsigned char", "uint8", "uint8_t":
		p.h.Type = Uint8
	case "ushort", "unsigned short", "uint16", "uint16_t":
		p.h.Type = Uint16
	case "short", "signed short", "short int", "int16", "int16_t":
		p.h.Type = Int16
	default:
		return fmt.Errorf("pixel data type %q is unsupported (uint8, uint16, int16 only)", value)
	}
	p.haveType = true
	return nil
}

func (p *parser) parseSizes(value string) error {
	fields := strings.Fields(value)
	if len(fields) != 3 && len(fields) != 4 {
		return fmt.Errorf("%d-D images are not supported (3- or 4-D only)", len(fields))
	}
	sizes := make([]int64, 0, 4)
	if len(fields) == 3 {
		// Channel-less images get a single implicit channel.
		sizes = append(sizes, 1)
	}
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid header field: sizes %q", value)
		}
		sizes = append(sizes, n)
	}
	if sizes[0] > 4 {
		return fmt.Errorf("%d-channel images are not supported (4 max)", sizes[0])
	}
	copy(p.h.Sizes[:], sizes)
	p.haveSizes = true
	return nil
}

func (p *parser) parseEncoding(value string) error {
	switch strings.ToLower(value) {
	case "raw":
		p.h.Encoding = EncodingRaw
	case "gzip", "gz":
		p.h.Encoding = EncodingGzip
	default:
		return fmt.Errorf("encoding %q is unsupported (raw, gzip only)", value)
	}
	return nil
}

// parseDirections parses "space directions". Rows are either "none" (a
// non-spatial axis, skipped) or a 3-vector; exactly three spatial rows are
// required. Skew and rotation are not interpreted, only the row norms.
func (p *parser) parseDirections(value string) error {
	rows, err := directionRows(value)
	if err != nil {
		return err
	}
	spatial := 0
	for _, row := range rows {
		if strings.EqualFold(row, "none") {
			continue
		}
		v, err := parseVector(row)
		if err != nil {
			return fmt.Errorf("the space directions are malformed")
		}
		if spatial >= 3 {
			return fmt.Errorf("the space directions are malformed")
		}
		norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		p.h.Scale[spatial] = norm
		spatial++
	}
	if spatial != 3 {
		return fmt.Errorf("the space directions are malformed")
	}
	return nil
}

// directionRows splits a "space directions" value into row tokens. Rows
// cannot be whitespace-split because writers may put spaces after the
// commas inside a vector, so "(...)" groups are taken whole.
func directionRows(value string) ([]string, error) {
	var rows []string
	rest := strings.TrimSpace(value)
	for rest != "" {
		if rest[0] == '(' {
			end := strings.IndexByte(rest, ')')
			if end < 0 {
				return nil, fmt.Errorf("the space directions are malformed")
			}
			rows = append(rows, rest[:end+1])
			rest = strings.TrimSpace(rest[end+1:])
			continue
		}
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			rows = append(rows, rest[:i])
			rest = strings.TrimSpace(rest[i+1:])
		} else {
			rows = append(rows, rest)
			rest = ""
		}
	}
	return rows, nil
}

func parseVector(s string) ([3]float64, error) {
	var v [3]float64
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return v, fmt.Errorf("malformed vector %q", s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("malformed vector %q", s)
	}
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return v, fmt.Errorf("malformed vector %q", s)
		}
		v[i] = f
	}
	return v, nil
}

// finish validates the assembled header.
func (p *parser) finish() (*Header, error) {
	if !p.haveType {
		return nil, fmt.Errorf("missing pixel data type")
	}
	if !p.haveSizes {
		return nil, fmt.Errorf("missing image sizes")
	}
	if p.dimension != 0 && p.dimension != 3 && p.dimension != 4 {
		return nil, fmt.Errorf("%d-D images are not supported (3- or 4-D only)", p.dimension)
	}
	if p.haveScanIndex && !p.haveGroupIndex {
		p.h.GroupIndex = p.scanIndex
	}
	if p.h.GroupIndex < 0 {
		return nil, fmt.Errorf("negative group index")
	}
	if p.h.CycleIndex < 0 {
		return nil, fmt.Errorf("negative time index")
	}
	if p.h.CycleLength < 1 {
		return nil, fmt.Errorf("non-positive number of timepoints (need at least one)")
	}
	if p.h.Period < 0 || math.IsNaN(p.h.Period) || math.IsInf(p.h.Period, 0) {
		return nil, fmt.Errorf("period is not a real number")
	}
	if len(p.h.Timestamp) > maxStringField {
		return nil, fmt.Errorf("excessively long timestamp (%d characters)", len(p.h.Timestamp))
	}
	if len(p.h.PeriodUnit) > maxStringField {
		return nil, fmt.Errorf("excessively long period unit (%d characters)", len(p.h.PeriodUnit))
	}
	for _, s := range p.h.Scale {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("the space directions are not positive")
		}
	}

	h := p.h
	return &h, nil
}
