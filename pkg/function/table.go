// Package function declares the spatial SQL functions and dispatches calls to
// them. Every entry decodes its geometry arguments with the shared codec,
// runs one GEOS operation and re-encodes geometry results.
package function

import (
	"fmt"
	"geosql/pkg/codec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
)

const (
	// Version is returned by the version probe functions.
	Version = "1.0"
	// ProbeName is the function whose presence marks an installed table.
	ProbeName = "GeoVersion"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrArity           = errors.New("wrong number of arguments")
	ErrArgument        = errors.New("invalid argument")
	// ErrGeometryOperation marks failures raised by the geometry engine
	// itself, after every argument decoded cleanly.
	ErrGeometryOperation = errors.New("geometry operation failed")
)

// Type is the SQL-facing type of a parameter or result.
type Type int

const (
	// Geometry is a BLOB holding an encoded geometry. Arguments of this type
	// are decoded before evaluation; results are encoded after it.
	Geometry Type = iota
	// Blob is a BLOB passed through untouched.
	Blob
	Text
	Integer
	Double
	Boolean
)

func (t Type) String() string {
	switch t {
	case Geometry:
		return "GEOMETRY"
	case Blob:
		return "BLOB"
	case Text:
		return "VARCHAR"
	case Integer:
		return "BIGINT"
	case Double:
		return "DOUBLE"
	case Boolean:
		return "BOOLEAN"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Observer is told about every completed call.
type Observer interface {
	Observe(function string, elapsed time.Duration, err error)
}

type evalFunc func(args []any) (any, error)

// Function is one entry of the table.
type Function struct {
	Name   string
	Doc    string
	Params []Type
	Result Type

	eval  evalFunc
	table *Table
}

// Signature renders the entry as NAME(TYPE, ...) -> TYPE.
func (f *Function) Signature() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s(%s) -> %s", f.Name, strings.Join(params, ", "), f.Result)
}

// Call evaluates the function on SQL-level argument values: []byte for
// GEOMETRY and BLOB, string for VARCHAR, any Go integer or float for the
// numeric types. A nil argument yields a nil result.
func (f *Function) Call(args []any) (result any, err error) {
	if f.table != nil && f.table.observer != nil {
		start := time.Now()
		defer func() {
			f.table.observer.Observe(f.Name, time.Since(start), err)
		}()
	}

	if len(args) != len(f.Params) {
		return nil, errors.Mark(
			errors.Newf("%s expects %d arguments, got %d", f.Name, len(f.Params), len(args)),
			ErrArity,
		)
	}
	for _, a := range args {
		if a == nil {
			return nil, nil
		}
	}

	decoded := make([]any, len(args))
	srid, hasGeometry := 0, false
	for i, p := range f.Params {
		v, err := f.table.decodeArg(p, args[i])
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument %d", f.Name, i+1)
		}
		if g, ok := v.(geom.T); ok && !hasGeometry {
			srid, hasGeometry = g.SRID(), true
		}
		decoded[i] = v
	}

	out, err := f.evaluate(decoded)
	if err != nil {
		return nil, err
	}

	if f.Result != Geometry {
		return out, nil
	}
	g, ok := out.(geom.T)
	if !ok {
		return nil, errors.AssertionFailedf("%s returned %T for a geometry result", f.Name, out)
	}
	if !hasGeometry {
		srid = g.SRID()
	}
	b, err := f.table.codec.Encode(g, srid)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s result", f.Name), ErrGeometryOperation)
	}
	return b, nil
}

// GEOS reports errors by panicking through go-geos.
func (f *Function) evaluate(args []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.Mark(errors.Newf("%s: %v", f.Name, r), ErrGeometryOperation)
		}
	}()
	return f.eval(args)
}

// Table is the static set of functions. It is immutable after NewTable and
// safe for concurrent use.
type Table struct {
	codec     *codec.Codec
	observer  Observer
	functions []*Function
	byName    map[string]*Function
}

// Option configures a Table.
type Option func(*Table)

// WithObserver reports every call to o.
func WithObserver(o Observer) Option {
	return func(t *Table) {
		t.observer = o
	}
}

// NewTable builds the table around c.
func NewTable(c *codec.Codec, opts ...Option) *Table {
	t := &Table{
		codec:  c,
		byName: make(map[string]*Function),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, fn := range builtins(c) {
		fn.table = t
		t.functions = append(t.functions, fn)
		t.byName[strings.ToLower(fn.Name)] = fn
	}
	return t
}

// Codec returns the codec shared by every entry.
func (t *Table) Codec() *codec.Codec {
	return t.codec
}

// Functions returns the entries in declaration order.
func (t *Table) Functions() []*Function {
	out := make([]*Function, len(t.functions))
	copy(out, t.functions)
	return out
}

// Lookup finds an entry by name, ignoring case like SQL does.
func (t *Table) Lookup(name string) (*Function, bool) {
	fn, ok := t.byName[strings.ToLower(name)]
	return fn, ok
}

// Call looks up name and evaluates it on args.
func (t *Table) Call(name string, args []any) (any, error) {
	fn, ok := t.Lookup(name)
	if !ok {
		return nil, errors.Mark(errors.Newf("function %q is not defined", name), ErrUnknownFunction)
	}
	return fn.Call(args)
}

func (t *Table) decodeArg(p Type, v any) (any, error) {
	switch p {
	case Geometry:
		b, ok := v.([]byte)
		if !ok {
			return nil, errors.Mark(errors.Newf("expected geometry bytes, got %T", v), ErrArgument)
		}
		return t.codec.Decode(b)
	case Blob:
		b, ok := v.([]byte)
		if !ok {
			return nil, errors.Mark(errors.Newf("expected bytes, got %T", v), ErrArgument)
		}
		return b, nil
	case Text:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Mark(errors.Newf("expected text, got %T", v), ErrArgument)
		}
		return s, nil
	case Integer:
		return toInt(v)
	case Double:
		return toFloat(v)
	default:
		return nil, errors.Mark(errors.Newf("unsupported parameter type %s", p), ErrArgument)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, errors.Mark(errors.Newf("expected an integer, got %v", n), ErrArgument)
		}
		return int(n), nil
	default:
		return 0, errors.Mark(errors.Newf("expected an integer, got %T", v), ErrArgument)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, errors.Mark(errors.Newf("expected a number, got %T", v), ErrArgument)
	}
}
