package codec

import (
	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
)

// TypeName returns the OGC type name of g, e.g. "MultiPolygon".
func TypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.LineString:
		return "LineString"
	case *geom.LinearRing:
		return "LinearRing"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	default:
		return "Unknown"
	}
}

// Dimension returns the topological dimension: 0 for points, 1 for curves,
// 2 for surfaces. A collection reports its highest member dimension, or -1
// when it has no members.
func Dimension(g geom.T) int {
	switch t := g.(type) {
	case *geom.Point, *geom.MultiPoint:
		return 0
	case *geom.LineString, *geom.LinearRing, *geom.MultiLineString:
		return 1
	case *geom.Polygon, *geom.MultiPolygon:
		return 2
	case *geom.GeometryCollection:
		dim := -1
		for _, member := range t.Geoms() {
			dim = max(dim, Dimension(member))
		}
		return dim
	default:
		return -1
	}
}

// NumPoints counts the vertices of g, including repeated closing vertices.
func NumPoints(g geom.T) int {
	if gc, ok := g.(*geom.GeometryCollection); ok {
		n := 0
		for _, member := range gc.Geoms() {
			n += NumPoints(member)
		}
		return n
	}
	if g.Empty() {
		return 0
	}
	return len(g.FlatCoords()) / g.Stride()
}

// NumGeometries returns the member count of a multi geometry or collection,
// and 1 for any single geometry.
func NumGeometries(g geom.T) int {
	switch t := g.(type) {
	case *geom.MultiPoint:
		return t.NumPoints()
	case *geom.MultiLineString:
		return t.NumLineStrings()
	case *geom.MultiPolygon:
		return t.NumPolygons()
	case *geom.GeometryCollection:
		return t.NumGeoms()
	default:
		return 1
	}
}

// GeometryN returns the n-th (0-based) member of a multi geometry or
// collection. A single geometry is its own only member and is returned
// whatever n is.
func GeometryN(g geom.T, n int) (geom.T, error) {
	count := NumGeometries(g)
	switch g.(type) {
	case *geom.MultiPoint, *geom.MultiLineString, *geom.MultiPolygon, *geom.GeometryCollection:
		if n < 0 || n >= count {
			return nil, errors.Newf("geometry index %d out of range [0, %d)", n, count)
		}
	default:
		return g, nil
	}

	var member geom.T
	switch t := g.(type) {
	case *geom.MultiPoint:
		member = t.Point(n)
	case *geom.MultiLineString:
		member = t.LineString(n)
	case *geom.MultiPolygon:
		member = t.Polygon(n)
	case *geom.GeometryCollection:
		member = t.Geom(n)
	}
	return SetSRID(member, g.SRID())
}
