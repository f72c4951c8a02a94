package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestPointRoundTrip(t *testing.T) {
	c := New()

	t.Run("2D point gains NaN Z", func(t *testing.T) {
		g, err := c.ParseText("POINT(0 12)")
		require.NoError(t, err)

		b, err := c.Encode(g, 27582)
		require.NoError(t, err)

		out, err := c.Decode(b)
		require.NoError(t, err)

		p, ok := out.(*geom.Point)
		require.True(t, ok)
		assert.Equal(t, geom.XYZ, p.Layout())
		assert.Equal(t, 0.0, p.X())
		assert.Equal(t, 12.0, p.Y())
		assert.True(t, math.IsNaN(p.Z()))
		assert.Equal(t, 27582, p.SRID())
	})

	t.Run("3D point keeps Z", func(t *testing.T) {
		g, err := c.ParseText("POINT(0 12 3)")
		require.NoError(t, err)

		b, err := c.Encode(g, 27582)
		require.NoError(t, err)

		out, err := c.Decode(b)
		require.NoError(t, err)

		p, ok := out.(*geom.Point)
		require.True(t, ok)
		assert.Equal(t, []float64{0, 12, 3}, p.FlatCoords())
		assert.Equal(t, 27582, p.SRID())
	})
}

func TestRoundTripPreservesShape(t *testing.T) {
	c := New()

	cases := []string{
		"POINT(1 2)",
		"LINESTRING(0 0, 1 1, 2 0)",
		"POLYGON((0 0, 4 0, 4 4, 0 4, 0 0), (1 1, 2 1, 2 2, 1 2, 1 1))",
		"MULTIPOINT((0 0), (1 1))",
		"MULTIPOINT((1 1), EMPTY, (2 2))",
		"MULTILINESTRING((0 0, 1 1), (2 2, 3 3, 4 4))",
		"MULTIPOLYGON(((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))",
		"LINESTRING Z (0 0 1, 1 1 2)",
		"GEOMETRYCOLLECTION(POINT(1 1), LINESTRING(0 0, 1 1))",
	}

	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			parsed, err := c.ParseText(text)
			require.NoError(t, err)
			want, err := c.Text(parsed)
			require.NoError(t, err)

			b, err := c.Encode(parsed, 4326)
			require.NoError(t, err)

			decoded, err := c.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, 4326, decoded.SRID())
			assert.Equal(t, TypeName(parsed), TypeName(decoded))
			assert.Equal(t, NumPoints(parsed), NumPoints(decoded))
			assert.Equal(t, NumGeometries(parsed), NumGeometries(decoded))

			got, err := c.Text(decoded)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestEncodeHeader(t *testing.T) {
	c := New()
	g, err := c.ParseText("POINT(1 2)")
	require.NoError(t, err)

	t.Run("with SRID", func(t *testing.T) {
		b, err := c.Encode(g, 4326)
		require.NoError(t, err)
		require.Greater(t, len(b), 9)

		assert.Equal(t, byte(1), b[0], "NDR byte order")
		typ := binary.LittleEndian.Uint32(b[1:5])
		assert.Equal(t, uint32(1), typ&0xffff, "point type code")
		assert.NotZero(t, typ&0x80000000, "Z flag")
		assert.NotZero(t, typ&0x20000000, "SRID flag")
		assert.Equal(t, uint32(4326), binary.LittleEndian.Uint32(b[5:9]))
	})

	t.Run("without SRID", func(t *testing.T) {
		b, err := c.Encode(g, 0)
		require.NoError(t, err)

		typ := binary.LittleEndian.Uint32(b[1:5])
		assert.NotZero(t, typ&0x80000000, "Z flag")
		assert.Zero(t, typ&0x20000000, "SRID flag")
		// byte order + type + three ordinates
		assert.Len(t, b, 1+4+3*8)
	})

	t.Run("nil geometry", func(t *testing.T) {
		_, err := c.Encode(nil, 0)
		assert.Error(t, err)
	})
}

func TestDecodeErrors(t *testing.T) {
	c := New()

	t.Run("empty input", func(t *testing.T) {
		g, err := c.Decode(nil)
		assert.Nil(t, g)
		assert.True(t, errors.Is(err, ErrMalformedGeometry))
	})

	t.Run("truncated input", func(t *testing.T) {
		g, err := c.ParseText("LINESTRING(0 0, 1 1, 2 2)")
		require.NoError(t, err)
		b, err := c.Encode(g, 4326)
		require.NoError(t, err)

		for _, n := range []int{1, 5, 9, len(b) - 1} {
			out, err := c.Decode(b[:n])
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrMalformedGeometry), "truncated to %d bytes: %v", n, err)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		g, err := c.ParseText("POINT(1 2)")
		require.NoError(t, err)
		b, err := c.Encode(g, 0)
		require.NoError(t, err)

		out, err := c.Decode(append(b, 0xde, 0xad))
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, ErrMalformedGeometry), "%v", err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := c.Decode([]byte{0xff, 0x01, 0x02})
		assert.True(t, errors.Is(err, ErrMalformedGeometry))
	})

	t.Run("measure ordinate", func(t *testing.T) {
		p := geom.NewPointFlat(geom.XYM, []float64{1, 2, 3})
		b, err := ewkb.Marshal(p, binary.LittleEndian)
		require.NoError(t, err)

		out, err := c.Decode(b)
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, ErrUnsupportedDimension))
		assert.False(t, errors.Is(err, ErrMalformedGeometry))
	})
}

func TestParseText(t *testing.T) {
	c := New()

	t.Run("EWKT prefix", func(t *testing.T) {
		g, err := c.ParseText("SRID=27582;POINT(3 4)")
		require.NoError(t, err)
		assert.Equal(t, 27582, g.SRID())
		assert.Equal(t, []float64{3, 4}, g.FlatCoords())
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := c.ParseText("POINT(0 12")
		assert.True(t, errors.Is(err, ErrMalformedGeometry))
	})

	t.Run("not WKT at all", func(t *testing.T) {
		_, err := c.ParseText("hello")
		assert.True(t, errors.Is(err, ErrMalformedGeometry))
	})
}

func TestSRIDText(t *testing.T) {
	c := New()
	g, err := c.ParseText("POINT(1 2)")
	require.NoError(t, err)

	b, err := c.Encode(g, 4326)
	require.NoError(t, err)
	decoded, err := c.Decode(b)
	require.NoError(t, err)

	s, err := c.SRIDText(decoded, 4326)
	require.NoError(t, err)
	assert.Equal(t, "SRID=4326;POINT (1 2)", s)
}

func TestForceLayout(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8}).SetSRID(3857)

	out, err := ForceLayout(poly, geom.XYZ)
	require.NoError(t, err)
	assert.Equal(t, geom.XYZ, out.Layout())
	assert.Equal(t, []int{12}, out.Ends())
	assert.Equal(t, 3857, out.SRID())
	assert.True(t, math.IsNaN(out.FlatCoords()[2]))

	back, err := Logical(out)
	require.NoError(t, err)
	assert.Equal(t, poly.FlatCoords(), back.FlatCoords())
	assert.Equal(t, poly.Ends(), back.Ends())

	t.Run("drops measure", func(t *testing.T) {
		p := geom.NewPointFlat(geom.XYZM, []float64{1, 2, 3, 4})
		out, err := ForceLayout(p, geom.XYZ)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, out.FlatCoords())
	})

	t.Run("keeps real Z", func(t *testing.T) {
		p := geom.NewPointFlat(geom.XYZ, []float64{1, 2, 3})
		out, err := Logical(p)
		require.NoError(t, err)
		assert.Same(t, p, out)
	})
}
