// Package codec converts geometry values to and from the byte and text forms
// stored in geometry columns.
//
// Stored values are EWKB, little-endian, always shaped as XYZ: a geometry
// with only two ordinates is widened with a NaN Z on the way out, and NaN Z
// is read back as "no Z".
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/encoding/wkt"
)

var (
	// ErrMalformedGeometry marks bytes or text that cannot be parsed into a
	// geometry value.
	ErrMalformedGeometry = errors.New("malformed geometry")
	// ErrUnsupportedDimension marks encoded values whose ordinate layout is
	// never produced by Encode (anything carrying an M ordinate).
	ErrUnsupportedDimension = errors.New("unsupported geometry dimension")
)

// Codec holds the fixed storage configuration. The zero value is not usable;
// construct one with New and share it.
type Codec struct {
	byteOrder binary.ByteOrder
	layout    geom.Layout
}

// New returns the storage codec: NDR byte order, XYZ output layout.
func New() *Codec {
	return &Codec{
		byteOrder: binary.LittleEndian,
		layout:    geom.XYZ,
	}
}

// Layout returns the layout every encoded geometry is written with.
func (c *Codec) Layout() geom.Layout {
	return c.layout
}

// Decode parses an EWKB (or plain ISO WKB) byte sequence.
func (c *Codec) Decode(b []byte) (geom.T, error) {
	if len(b) == 0 {
		return nil, errors.Mark(errors.New("empty geometry value"), ErrMalformedGeometry)
	}

	r := bytes.NewReader(b)
	g, err := ewkb.Read(r)
	if err != nil {
		// ISO WKB uses type codes in the thousands instead of high-bit flags.
		var isoErr error
		r.Reset(b)
		if g, isoErr = wkb.Read(r); isoErr != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to decode geometry bytes"), ErrMalformedGeometry)
		}
	}
	if r.Len() != 0 {
		return nil, errors.Mark(
			errors.Newf("%d trailing bytes after %s geometry", r.Len(), TypeName(g)),
			ErrMalformedGeometry,
		)
	}

	if g.Layout().MIndex() != -1 {
		return nil, errors.Mark(
			errors.Newf("geometry layout %s carries a measure ordinate", layoutName(g.Layout())),
			ErrUnsupportedDimension,
		)
	}
	return g, nil
}

// Encode tags g with srid and serializes it as XYZ EWKB. A missing Z is
// written as NaN and an M ordinate is dropped.
func (c *Codec) Encode(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, errors.New("cannot encode a nil geometry")
	}

	out, err := ForceLayout(g, c.layout)
	if err != nil {
		return nil, err
	}
	if out, err = SetSRID(out, srid); err != nil {
		return nil, err
	}

	b, err := ewkb.Marshal(out, c.byteOrder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode geometry")
	}
	return b, nil
}

var sridPrefix = regexp.MustCompile(`(?i)^\s*SRID\s*=\s*(-?\d+)\s*;`)

// ParseText parses WKT. An EWKT "SRID=<n>;" prefix is honoured.
func (c *Codec) ParseText(s string) (geom.T, error) {
	srid := 0
	if m := sridPrefix.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "invalid SRID in %q", s), ErrMalformedGeometry)
		}
		srid = n
		s = s[len(m[0]):]
	}

	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to parse WKT %q", s), ErrMalformedGeometry)
	}
	if srid != 0 {
		return SetSRID(g, srid)
	}
	return g, nil
}

// Text returns the WKT of the logical geometry: Z is left out when every Z
// ordinate is NaN.
func (c *Codec) Text(g geom.T) (string, error) {
	l, err := Logical(g)
	if err != nil {
		return "", err
	}
	s, err := wkt.Marshal(l)
	if err != nil {
		return "", errors.Wrap(err, "failed to write WKT")
	}
	return s, nil
}

// SRIDText returns "SRID=<srid>;<wkt>".
func (c *Codec) SRIDText(g geom.T, srid int) (string, error) {
	s, err := c.Text(g)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SRID=%d;%s", srid, s), nil
}

func layoutName(l geom.Layout) string {
	switch l {
	case geom.XY:
		return "XY"
	case geom.XYZ:
		return "XYZ"
	case geom.XYM:
		return "XYM"
	case geom.XYZM:
		return "XYZM"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}
