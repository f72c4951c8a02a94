package codec

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
)

// SetSRID sets the SRID of g in place and returns it.
func SetSRID(g geom.T, srid int) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(srid), nil
	case *geom.LineString:
		return t.SetSRID(srid), nil
	case *geom.LinearRing:
		return t.SetSRID(srid), nil
	case *geom.Polygon:
		return t.SetSRID(srid), nil
	case *geom.MultiPoint:
		return t.SetSRID(srid), nil
	case *geom.MultiLineString:
		return t.SetSRID(srid), nil
	case *geom.MultiPolygon:
		return t.SetSRID(srid), nil
	case *geom.GeometryCollection:
		return t.SetSRID(srid), nil
	default:
		return nil, errors.Newf("unknown geometry type %T", g)
	}
}

// ForceLayout returns a copy of g converted to layout l. Ordinates missing
// from the source are filled with NaN; ordinates absent from l are dropped.
// g is returned unchanged when it already has layout l.
func ForceLayout(g geom.T, l geom.Layout) (geom.T, error) {
	if g.Layout() == l {
		return g, nil
	}
	from := g.Layout()
	srid := g.SRID()

	switch t := g.(type) {
	case *geom.Point:
		if t.Empty() {
			return geom.NewPointEmpty(l).SetSRID(srid), nil
		}
		return geom.NewPointFlat(l, convertCoords(t.FlatCoords(), from, l)).SetSRID(srid), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(l, convertCoords(t.FlatCoords(), from, l)).SetSRID(srid), nil
	case *geom.LinearRing:
		return geom.NewLinearRingFlat(l, convertCoords(t.FlatCoords(), from, l)).SetSRID(srid), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(l, convertCoords(t.FlatCoords(), from, l), convertEnds(t.Ends(), from, l)).SetSRID(srid), nil
	case *geom.MultiPoint:
		// Ends record EMPTY members, which carry no coordinates.
		var opts []geom.NewMultiPointFlatOption
		if t.Ends() != nil {
			opts = append(opts, geom.NewMultiPointFlatOptionWithEnds(convertEnds(t.Ends(), from, l)))
		}
		return geom.NewMultiPointFlat(l, convertCoords(t.FlatCoords(), from, l), opts...).SetSRID(srid), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(l, convertCoords(t.FlatCoords(), from, l), convertEnds(t.Ends(), from, l)).SetSRID(srid), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = convertEnds(ends, from, l)
		}
		return geom.NewMultiPolygonFlat(l, convertCoords(t.FlatCoords(), from, l), endss).SetSRID(srid), nil
	case *geom.GeometryCollection:
		if t.NumGeoms() == 0 {
			return t, nil
		}
		gc := geom.NewGeometryCollection().SetSRID(srid)
		for _, member := range t.Geoms() {
			converted, err := ForceLayout(member, l)
			if err != nil {
				return nil, err
			}
			if err := gc.Push(converted); err != nil {
				return nil, errors.Wrap(err, "failed to rebuild geometry collection")
			}
		}
		return gc, nil
	default:
		return nil, errors.Newf("unknown geometry type %T", g)
	}
}

// Logical strips a Z ordinate that carries no information (every Z is NaN),
// which is how a two-dimensional geometry comes back from storage.
func Logical(g geom.T) (geom.T, error) {
	zi := g.Layout().ZIndex()
	if zi == -1 {
		return g, nil
	}
	if !allNaNZ(g) {
		return g, nil
	}
	target := geom.XY
	if g.Layout().MIndex() != -1 {
		target = geom.XYM
	}
	return ForceLayout(g, target)
}

func allNaNZ(g geom.T) bool {
	if gc, ok := g.(*geom.GeometryCollection); ok {
		for _, member := range gc.Geoms() {
			if member.Layout().ZIndex() != -1 && !allNaNZ(member) {
				return false
			}
		}
		return true
	}
	zi := g.Layout().ZIndex()
	stride := g.Stride()
	flat := g.FlatCoords()
	for i := zi; i < len(flat); i += stride {
		if !math.IsNaN(flat[i]) {
			return false
		}
	}
	return true
}

func convertCoords(src []float64, from, to geom.Layout) []float64 {
	fs, ts := from.Stride(), to.Stride()
	n := len(src) / fs
	dst := make([]float64, n*ts)
	fz, fm := from.ZIndex(), from.MIndex()
	tz, tm := to.ZIndex(), to.MIndex()
	for i := 0; i < n; i++ {
		s, d := src[i*fs:(i+1)*fs], dst[i*ts:(i+1)*ts]
		d[0], d[1] = s[0], s[1]
		if tz != -1 {
			d[tz] = ordinate(s, fz)
		}
		if tm != -1 {
			d[tm] = ordinate(s, fm)
		}
	}
	return dst
}

func ordinate(coord []float64, idx int) float64 {
	if idx == -1 {
		return math.NaN()
	}
	return coord[idx]
}

// Ends index into the flat coordinate slice, so they scale with the stride.
func convertEnds(ends []int, from, to geom.Layout) []int {
	out := make([]int, len(ends))
	for i, end := range ends {
		out[i] = end / from.Stride() * to.Stride()
	}
	return out
}
