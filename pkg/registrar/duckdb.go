package registrar

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"geosql/pkg/function"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/duckdb/duckdb-go/v2"
)

// internalPrefix names the scalar UDF behind each public macro. UDFs added
// through the C API live in the system catalog and cannot be dropped, so the
// public name is a macro that forwards to the UDF; dropping the macro is
// what unregisters the function.
const internalPrefix = "geosql_"

// collisionPrefix is prepended to the public name of a function whose name
// DuckDB already defines, so the built-in keeps working.
const collisionPrefix = "Geo"

// DuckDB registers functions on a DuckDB connection.
type DuckDB struct {
	conn *sql.Conn
}

// NewDuckDB wraps conn. The UDFs and macros it creates are visible to every
// connection of the same database.
func NewDuckDB(conn *sql.Conn) *DuckDB {
	return &DuckDB{conn: conn}
}

// PublicName returns the SQL name fn is exposed under: name itself, or
// name with collisionPrefix when a DuckDB built-in already uses it
// (Contains becomes GeoContains).
func (d *DuckDB) PublicName(ctx context.Context, name string) (string, error) {
	var n int
	err := d.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM duckdb_functions() WHERE internal AND lower(function_name) = lower(?)`,
		name,
	).Scan(&n)
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up built-in %s", name)
	}
	if n > 0 {
		return collisionPrefix + name, nil
	}
	return name, nil
}

// Registered reports true only when both the public macro and the UDF
// behind it exist. A persisted database reopened in a new process keeps the
// macros but not the UDFs.
func (d *DuckDB) Registered(ctx context.Context, name string) (bool, error) {
	public, err := d.PublicName(ctx, name)
	if err != nil {
		return false, err
	}
	macro, err := d.exists(ctx, "macro", public)
	if err != nil {
		return false, err
	}
	if !macro {
		return false, nil
	}
	return d.exists(ctx, "scalar", internalName(name))
}

// Register adds the UDF (once per database) and (re)creates its macro.
func (d *DuckDB) Register(ctx context.Context, fn *function.Function) error {
	internal := internalName(fn.Name)
	ok, err := d.exists(ctx, "scalar", internal)
	if err != nil {
		return err
	}
	if !ok {
		udf, err := newScalarUDF(fn)
		if err != nil {
			return err
		}
		if err := duckdb.RegisterScalarUDF(d.conn, internal, udf); err != nil {
			return errors.Wrapf(err, "failed to register scalar function %s", internal)
		}
	}

	public, err := d.PublicName(ctx, fn.Name)
	if err != nil {
		return err
	}
	if public != fn.Name {
		slog.WarnContext(ctx, "function name is a DuckDB built-in, registering under another name",
			"function", fn.Name, "name", public)
	}
	if _, err := d.conn.ExecContext(ctx, macroDDL(public, fn)); err != nil {
		return errors.Wrapf(err, "failed to create macro %s", public)
	}
	return nil
}

func (d *DuckDB) Unregister(ctx context.Context, name string) error {
	public, err := d.PublicName(ctx, name)
	if err != nil {
		return err
	}
	if _, err := d.conn.ExecContext(ctx, fmt.Sprintf("DROP MACRO IF EXISTS %s", quoteIdent(public))); err != nil {
		return errors.Wrapf(err, "failed to drop macro %s", public)
	}
	return nil
}

func (d *DuckDB) exists(ctx context.Context, functionType, name string) (bool, error) {
	var n int
	err := d.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM duckdb_functions() WHERE function_type = ? AND lower(function_name) = lower(?) AND NOT (internal AND function_type = 'macro')`,
		functionType, name,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up %s %s", functionType, name)
	}
	return n > 0, nil
}

func internalName(name string) string {
	return internalPrefix + strings.ToLower(name)
}

func macroDDL(public string, fn *function.Function) string {
	params := make([]string, len(fn.Params))
	for i := range fn.Params {
		params[i] = fmt.Sprintf("a%d", i)
	}
	list := strings.Join(params, ", ")
	return fmt.Sprintf("CREATE OR REPLACE MACRO %s(%s) AS %s(%s)",
		quoteIdent(public), list, internalName(fn.Name), list)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// scalarUDF adapts a table entry to duckdb.ScalarFunc.
type scalarUDF struct {
	fn     *function.Function
	config duckdb.ScalarFuncConfig
}

func newScalarUDF(fn *function.Function) (*scalarUDF, error) {
	inputs := make([]duckdb.TypeInfo, len(fn.Params))
	for i, p := range fn.Params {
		info, err := typeInfo(p)
		if err != nil {
			return nil, errors.Wrapf(err, "%s parameter %d", fn.Name, i+1)
		}
		inputs[i] = info
	}
	result, err := typeInfo(fn.Result)
	if err != nil {
		return nil, errors.Wrapf(err, "%s result", fn.Name)
	}

	return &scalarUDF{
		fn: fn,
		config: duckdb.ScalarFuncConfig{
			InputTypeInfos: inputs,
			ResultTypeInfo: result,
		},
	}, nil
}

func (u *scalarUDF) Config() duckdb.ScalarFuncConfig {
	return u.config
}

func (u *scalarUDF) Executor() duckdb.ScalarFuncExecutor {
	return duckdb.ScalarFuncExecutor{
		RowExecutor: func(values []driver.Value) (any, error) {
			args := make([]any, len(values))
			for i, v := range values {
				args[i] = v
			}
			return u.fn.Call(args)
		},
	}
}

// Geometries travel as BLOB; a GEOMETRY column (a BLOB alias) casts to it
// implicitly.
func typeInfo(t function.Type) (duckdb.TypeInfo, error) {
	switch t {
	case function.Geometry, function.Blob:
		return duckdb.NewTypeInfo(duckdb.TYPE_BLOB)
	case function.Text:
		return duckdb.NewTypeInfo(duckdb.TYPE_VARCHAR)
	case function.Integer:
		return duckdb.NewTypeInfo(duckdb.TYPE_BIGINT)
	case function.Double:
		return duckdb.NewTypeInfo(duckdb.TYPE_DOUBLE)
	case function.Boolean:
		return duckdb.NewTypeInfo(duckdb.TYPE_BOOLEAN)
	default:
		return nil, errors.Newf("no DuckDB type for %s", t)
	}
}
