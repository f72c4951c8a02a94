package flight

import (
	"geosql/pkg/function"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cockroachdb/errors"
)

// outputSchema is the input schema plus one result column. The first
// len(fn.Params) input columns are the arguments, in order.
func outputSchema(in *arrow.Schema, fn *function.Function, column string) (*arrow.Schema, error) {
	if in.NumFields() < len(fn.Params) {
		return nil, errors.Mark(
			errors.Newf("%s expects %d argument columns, got %d", fn.Name, len(fn.Params), in.NumFields()),
			function.ErrArity,
		)
	}
	if len(in.FieldIndices(column)) > 0 {
		return nil, errors.Newf("input already has a column named %q", column)
	}

	resultType, err := arrowType(fn.Result)
	if err != nil {
		return nil, err
	}

	fields := append(append([]arrow.Field{}, in.Fields()...), arrow.Field{Name: column, Type: resultType, Nullable: true})
	md := in.Metadata()
	return arrow.NewSchema(fields, &md), nil
}

func arrowType(t function.Type) (arrow.DataType, error) {
	switch t {
	case function.Geometry, function.Blob:
		return arrow.BinaryTypes.Binary, nil
	case function.Text:
		return arrow.BinaryTypes.String, nil
	case function.Integer:
		return arrow.PrimitiveTypes.Int64, nil
	case function.Double:
		return arrow.PrimitiveTypes.Float64, nil
	case function.Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, errors.Newf("no arrow type for %s", t)
	}
}

// evaluate calls fn once per row and returns the input columns with the
// results appended.
func (s *GeoFlightServer) evaluate(fn *function.Function, rec arrow.RecordBatch, schema *arrow.Schema) (arrow.RecordBatch, error) {
	builder := array.NewBuilder(s.alloc, schema.Field(schema.NumFields()-1).Type)
	defer builder.Release()

	args := make([]any, len(fn.Params))
	for row := 0; row < int(rec.NumRows()); row++ {
		for i, p := range fn.Params {
			v, err := s.cellValue(p, rec.Column(i), row)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d, column %s", row, rec.ColumnName(i))
			}
			args[i] = v
		}

		out, err := fn.Call(args)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		if err := appendValue(builder, out); err != nil {
			return nil, err
		}
	}

	result := builder.NewArray()
	defer result.Release()

	cols := append(append([]arrow.Array{}, rec.Columns()...), result)
	return array.NewRecordBatch(schema, cols, rec.NumRows()), nil
}

// cellValue converts one cell to the value fn.Call expects. Geometry
// columns may also be strings, read as WKT or EWKT.
func (s *GeoFlightServer) cellValue(p function.Type, col arrow.Array, row int) (any, error) {
	if col.IsNull(row) {
		return nil, nil
	}

	switch c := col.(type) {
	case *array.Binary:
		if p == function.Geometry || p == function.Blob {
			return c.Value(row), nil
		}
	case *array.String:
		switch p {
		case function.Text:
			return c.Value(row), nil
		case function.Geometry:
			g, err := s.table.Codec().ParseText(c.Value(row))
			if err != nil {
				return nil, err
			}
			return s.table.Codec().Encode(g, g.SRID())
		}
	case *array.Int32:
		if p == function.Integer || p == function.Double {
			return c.Value(row), nil
		}
	case *array.Int64:
		if p == function.Integer || p == function.Double {
			return c.Value(row), nil
		}
	case *array.Float64:
		if p == function.Double {
			return c.Value(row), nil
		}
	}
	return nil, errors.Mark(errors.Newf("column type %s cannot carry a %s argument", col.DataType(), p), function.ErrArgument)
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch bb := b.(type) {
	case *array.BinaryBuilder:
		if x, ok := v.([]byte); ok {
			bb.Append(x)
			return nil
		}
	case *array.StringBuilder:
		if x, ok := v.(string); ok {
			bb.Append(x)
			return nil
		}
	case *array.Int64Builder:
		if x, ok := v.(int64); ok {
			bb.Append(x)
			return nil
		}
	case *array.Float64Builder:
		if x, ok := v.(float64); ok {
			bb.Append(x)
			return nil
		}
	case *array.BooleanBuilder:
		if x, ok := v.(bool); ok {
			bb.Append(x)
			return nil
		}
	}
	return errors.AssertionFailedf("cannot append %T to %T", v, b)
}
