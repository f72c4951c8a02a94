package function

import (
	"bytes"
	"geosql/pkg/codec"

	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

func builtins(c *codec.Codec) []*Function {
	return []*Function{
		// Version probe
		constant("GeoVersion", "Version of the installed spatial functions.", Version),
		constant("LastGeoVersion", "Latest released version of the spatial functions.", Version),

		// Constructors
		{
			Name:   "GeomFromText",
			Doc:    "Parses WKT (or EWKT) and tags the geometry with srid.",
			Params: []Type{Text, Integer},
			Result: Geometry,
			eval: func(args []any) (any, error) {
				g, err := c.ParseText(args[0].(string))
				if err != nil {
					return nil, err
				}
				return codec.SetSRID(g, args[1].(int))
			},
		},
		{
			Name:   "GeomFromWKB",
			Doc:    "Reads WKB or EWKB and tags the geometry with srid.",
			Params: []Type{Blob, Integer},
			Result: Geometry,
			eval: func(args []any) (any, error) {
				g, err := c.Decode(args[0].([]byte))
				if err != nil {
					return nil, err
				}
				return codec.SetSRID(g, args[1].(int))
			},
		},

		// Accessors
		accessor("ToString", "WKT form of the geometry.", Text, func(g geom.T) (any, error) {
			return c.Text(g)
		}),
		accessor("AsText", "WKT form of the geometry.", Text, func(g geom.T) (any, error) {
			return c.Text(g)
		}),
		accessor("AsEWKT", "EWKT form of the geometry: SRID=<srid>;<wkt>.", Text, func(g geom.T) (any, error) {
			return c.SRIDText(g, g.SRID())
		}),
		{
			Name:   "AsBinary",
			Doc:    "Stored bytes of the geometry, unchanged.",
			Params: []Type{Blob},
			Result: Blob,
			eval: func(args []any) (any, error) {
				return args[0], nil
			},
		},
		accessor("GeometryType", "OGC type name, e.g. Polygon.", Text, func(g geom.T) (any, error) {
			return codec.TypeName(g), nil
		}),
		accessor("Dimension", "Topological dimension: 0 points, 1 curves, 2 surfaces.", Integer, func(g geom.T) (any, error) {
			return int64(codec.Dimension(g)), nil
		}),
		accessor("NumPoints", "Number of vertices.", Integer, func(g geom.T) (any, error) {
			return int64(codec.NumPoints(g)), nil
		}),
		accessor("SRID", "Spatial reference identifier stored with the geometry.", Integer, func(g geom.T) (any, error) {
			return int64(g.SRID()), nil
		}),
		unary("Boundary", "Combinatorial boundary.", (*geos.Geom).Boundary),
		unary("Envelope", "Bounding box as a polygon.", (*geos.Geom).Envelope),
		accessor("NumGeometries", "Number of members of a collection; 1 for a single geometry.", Integer, func(g geom.T) (any, error) {
			return int64(codec.NumGeometries(g)), nil
		}),
		{
			Name:   "GeometryN",
			Doc:    "0-based member of a collection; a single geometry returns itself.",
			Params: []Type{Geometry, Integer},
			Result: Geometry,
			eval: func(args []any) (any, error) {
				member, err := codec.GeometryN(args[0].(geom.T), args[1].(int))
				if err != nil {
					return nil, errors.Mark(err, ErrArgument)
				}
				return member, nil
			},
		},

		// Measurements
		measure("GeoLength", "Length of linear components.", (*geos.Geom).Length),
		measure("Area", "Area of surface components.", (*geos.Geom).Area),
		{
			Name:   "Distance",
			Doc:    "Minimum planar distance between two geometries.",
			Params: []Type{Geometry, Geometry},
			Result: Double,
			eval: func(args []any) (any, error) {
				return withGEOS2(args[0].(geom.T), args[1].(geom.T), func(a, b *geos.Geom) (any, error) {
					return a.Distance(b), nil
				})
			},
		},

		// Predicates
		{
			Name:   "Equals",
			Doc:    "True when both stored values are byte-for-byte identical. See GeomEquals for topological equality.",
			Params: []Type{Blob, Blob},
			Result: Boolean,
			eval: func(args []any) (any, error) {
				return bytes.Equal(args[0].([]byte), args[1].([]byte)), nil
			},
		},
		predicate("GeomEquals", "True when the geometries are topologically equal.", (*geos.Geom).Equals),
		predicate("Disjoint", "True when the geometries share no point.", (*geos.Geom).Disjoint),
		predicate("Touches", "True when the geometries touch only at their boundaries.", (*geos.Geom).Touches),
		predicate("Within", "True when the first geometry lies within the second.", (*geos.Geom).Within),
		predicate("Overlaps", "True when the geometries overlap.", (*geos.Geom).Overlaps),
		predicate("Crosses", "True when the geometries cross.", (*geos.Geom).Crosses),
		predicate("Intersects", "True when the geometries share at least one point.", (*geos.Geom).Intersects),
		predicate("Contains", "True when the first geometry contains the second.", (*geos.Geom).Contains),
		accessor("IsEmpty", "True for an empty geometry.", Boolean, func(g geom.T) (any, error) {
			return g.Empty(), nil
		}),
		unaryPredicate("IsSimple", "True when the geometry has no anomalous points such as self-intersections.", (*geos.Geom).IsSimple),
		unaryPredicate("IsValid", "True when the geometry is well formed.", (*geos.Geom).IsValid),
		{
			Name:   "IsWithinDistance",
			Doc:    "True when the distance between the geometries is at most the threshold.",
			Params: []Type{Geometry, Geometry, Double},
			Result: Boolean,
			eval: func(args []any) (any, error) {
				threshold := args[2].(float64)
				return withGEOS2(args[0].(geom.T), args[1].(geom.T), func(a, b *geos.Geom) (any, error) {
					return a.Distance(b) <= threshold, nil
				})
			},
		},
		{
			Name:   "Relate",
			Doc:    "DE-9IM intersection matrix of the two geometries.",
			Params: []Type{Geometry, Geometry},
			Result: Text,
			eval: func(args []any) (any, error) {
				return withGEOS2(args[0].(geom.T), args[1].(geom.T), func(a, b *geos.Geom) (any, error) {
					return a.Relate(b), nil
				})
			},
		},

		// Set operations
		overlay("Intersection", "Point set shared by both geometries.", (*geos.Geom).Intersection),
		overlay("GeomDifference", "Points of the first geometry not in the second.", (*geos.Geom).Difference),
		overlay("GeomUnion", "Point set union of both geometries.", (*geos.Geom).Union),
		overlay("SymDifference", "Points in exactly one of the geometries.", (*geos.Geom).SymDifference),
		unary("ConvexHull", "Smallest convex polygon containing the geometry.", (*geos.Geom).ConvexHull),
		{
			Name:   "Buffer",
			Doc:    "Area within distance of the geometry, eight segments per quadrant.",
			Params: []Type{Geometry, Double},
			Result: Geometry,
			eval: func(args []any) (any, error) {
				width := args[1].(float64)
				return withGEOS(args[0].(geom.T), func(g *geos.Geom) (any, error) {
					return resultGeom(g.Buffer(width, bufferQuadrantSegments))
				})
			},
		},
	}
}

const bufferQuadrantSegments = 8

func constant(name, doc string, value string) *Function {
	return &Function{
		Name:   name,
		Doc:    doc,
		Result: Text,
		eval: func([]any) (any, error) {
			return value, nil
		},
	}
}

func accessor(name, doc string, result Type, fn func(geom.T) (any, error)) *Function {
	return &Function{
		Name:   name,
		Doc:    doc,
		Params: []Type{Geometry},
		Result: result,
		eval: func(args []any) (any, error) {
			return fn(args[0].(geom.T))
		},
	}
}

func unary(name, doc string, op func(*geos.Geom) *geos.Geom) *Function {
	return &Function{
		Name:   name,
		Doc:    doc,
		Params: []Type{Geometry},
		Result: Geometry,
		eval: func(args []any) (any, error) {
			return withGEOS(args[0].(geom.T), func(g *geos.Geom) (any, error) {
				return resultGeom(op(g))
			})
		},
	}
}

func unaryPredicate(name, doc string, p func(*geos.Geom) bool) *Function {
	return &Function{
		Name:   name,
		Doc:    doc,
		Params: []Type{Geometry},
		Result: Boolean,
		eval: func(args []any) (any, error) {
			return withGEOS(args[0].(geom.T), func(g *geos.Geom) (any, error) {
				return p(g), nil
			})
		},
	}
}

func measure(name, doc string, m func(*geos.Geom) float64) *Function {
	return &Function{
		Name:   name,
		Doc:    doc,
		Params: []Type{Geometry},
		Result: Double,
		eval: func(args []any) (any, error) {
			return withGEOS(args[0].(geom.T), func(g *geos.Geom) (any, error) {
				return m(g), nil
			})
		},
	}
}

func predicate(name, doc string, p func(*geos.Geom, *geos.Geom) bool) *Function {
	return &Function{
		Name:   name,
		Doc:    doc,
		Params: []Type{Geometry, Geometry},
		Result: Boolean,
		eval: func(args []any) (any, error) {
			return withGEOS2(args[0].(geom.T), args[1].(geom.T), func(a, b *geos.Geom) (any, error) {
				return p(a, b), nil
			})
		},
	}
}

func overlay(name, doc string, op func(*geos.Geom, *geos.Geom) *geos.Geom) *Function {
	return &Function{
		Name:   name,
		Doc:    doc,
		Params: []Type{Geometry, Geometry},
		Result: Geometry,
		eval: func(args []any) (any, error) {
			return withGEOS2(args[0].(geom.T), args[1].(geom.T), func(a, b *geos.Geom) (any, error) {
				return resultGeom(op(a, b))
			})
		},
	}
}
