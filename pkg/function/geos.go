package function

import (
	"encoding/binary"
	"geosql/pkg/codec"

	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// toGEOS hands g to GEOS as EWKB. The NaN Z that storage adds to planar
// geometries is stripped first so GEOS sees the logical shape.
func toGEOS(g geom.T) (*geos.Geom, error) {
	logical, err := codec.Logical(g)
	if err != nil {
		return nil, err
	}
	b, err := ewkb.Marshal(logical, binary.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode geometry for GEOS")
	}
	gg, err := geos.NewGeomFromWKB(b)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "GEOS rejected geometry"), ErrGeometryOperation)
	}
	return gg, nil
}

func fromGEOS(gg *geos.Geom) (geom.T, error) {
	b := gg.ToWKB()
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		var isoErr error
		if g, isoErr = wkb.Unmarshal(b); isoErr != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to read GEOS result"), ErrGeometryOperation)
		}
	}
	return g, nil
}

func withGEOS(g geom.T, fn func(*geos.Geom) (any, error)) (any, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return nil, err
	}
	defer gg.Destroy()
	return fn(gg)
}

func withGEOS2(a, b geom.T, fn func(*geos.Geom, *geos.Geom) (any, error)) (any, error) {
	ga, err := toGEOS(a)
	if err != nil {
		return nil, err
	}
	defer ga.Destroy()
	gb, err := toGEOS(b)
	if err != nil {
		return nil, err
	}
	defer gb.Destroy()
	return fn(ga, gb)
}

// resultGeom converts a GEOS result back and releases it.
func resultGeom(gg *geos.Geom) (any, error) {
	defer gg.Destroy()
	return fromGEOS(gg)
}
