package registrar

import (
	"context"
	"database/sql"
	"geosql/pkg/codec"
	"geosql/pkg/function"
	"testing"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openConn(t *testing.T) *sql.Conn {
	t.Helper()
	connector, err := duckdb.NewConnector("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { connector.Close() })

	db := sql.OpenDB(connector)
	t.Cleanup(func() { db.Close() })

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDuckDBRegistrar(t *testing.T) {
	ctx := context.Background()
	conn := openConn(t)
	tbl := function.NewTable(codec.New())
	reg := NewDuckDB(conn)

	installed, err := Install(ctx, reg, tbl)
	require.NoError(t, err)
	require.True(t, installed)

	t.Run("install is idempotent", func(t *testing.T) {
		installed, err := Install(ctx, reg, tbl)
		require.NoError(t, err)
		assert.False(t, installed)

		var n int
		err = conn.QueryRowContext(ctx,
			`SELECT count(*) FROM duckdb_functions() WHERE function_type = 'macro' AND lower(function_name) = 'geoversion'`,
		).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("version probe", func(t *testing.T) {
		var v string
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT GeoVersion()").Scan(&v))
		assert.Equal(t, function.Version, v)
	})

	t.Run("round trip through SQL", func(t *testing.T) {
		var text, ewkt string
		var srid int64
		err := conn.QueryRowContext(ctx, `
			SELECT AsText(g), AsEWKT(g), SRID(g)
			FROM (SELECT GeomFromText('POINT(0 12)', 27582) AS g)`,
		).Scan(&text, &ewkt, &srid)
		require.NoError(t, err)
		assert.Equal(t, "POINT (0 12)", text)
		assert.Equal(t, "SRID=27582;POINT (0 12)", ewkt)
		assert.Equal(t, int64(27582), srid)
	})

	t.Run("stored bytes decode with the codec", func(t *testing.T) {
		var b []byte
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT GeomFromText('POINT(0 12 3)', 4326)").Scan(&b))

		g, err := codec.New().Decode(b)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 12, 3}, g.FlatCoords())
		assert.Equal(t, 4326, g.SRID())
	})

	t.Run("predicates and measures", func(t *testing.T) {
		var intersects, disjoint bool
		var area float64
		err := conn.QueryRowContext(ctx, `
			SELECT Intersects(a, b), Disjoint(a, b), Area(Buffer(a, 1.0))
			FROM (SELECT
				GeomFromText('POLYGON((0 0, 4 0, 4 4, 0 4, 0 0))', 4326) AS a,
				GeomFromText('POINT(2 2)', 4326) AS b)`,
		).Scan(&intersects, &disjoint, &area)
		require.NoError(t, err)
		assert.True(t, intersects)
		assert.False(t, disjoint)
		assert.Greater(t, area, 16.0)
	})

	t.Run("built-in names are left alone", func(t *testing.T) {
		public, err := reg.PublicName(ctx, "Contains")
		require.NoError(t, err)
		assert.Equal(t, "GeoContains", public)

		public, err = reg.PublicName(ctx, "Intersects")
		require.NoError(t, err)
		assert.Equal(t, "Intersects", public)

		var inPolygon, inString bool
		var listHas bool
		err = conn.QueryRowContext(ctx, `
			SELECT GeoContains(a, b), contains('abc', 'b'), contains([1, 2, 3], 2)
			FROM (SELECT
				GeomFromText('POLYGON((0 0, 4 0, 4 4, 0 4, 0 0))', 4326) AS a,
				GeomFromText('POINT(2 2)', 4326) AS b)`,
		).Scan(&inPolygon, &inString, &listHas)
		require.NoError(t, err)
		assert.True(t, inPolygon)
		assert.True(t, inString)
		assert.True(t, listHas)

		var n int
		err = conn.QueryRowContext(ctx,
			`SELECT count(*) FROM duckdb_functions() WHERE function_type = 'macro' AND lower(function_name) = 'contains'`,
		).Scan(&n)
		require.NoError(t, err)
		assert.Zero(t, n, "no macro shadows the built-in")
	})

	t.Run("null input yields null", func(t *testing.T) {
		var text sql.NullString
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT AsText(NULL::BLOB)").Scan(&text))
		assert.False(t, text.Valid)
	})

	t.Run("malformed input fails the query", func(t *testing.T) {
		var text string
		err := conn.QueryRowContext(ctx, `SELECT AsText('\x01\x02'::BLOB)`).Scan(&text)
		assert.Error(t, err)
	})

	t.Run("uninstall drops the public names", func(t *testing.T) {
		require.NoError(t, Uninstall(ctx, reg, tbl))

		ok, err := reg.Registered(ctx, function.ProbeName)
		require.NoError(t, err)
		assert.False(t, ok)

		var v string
		err = conn.QueryRowContext(ctx, "SELECT GeoVersion()").Scan(&v)
		assert.Error(t, err)

		installed, err := Install(ctx, reg, tbl)
		require.NoError(t, err)
		assert.True(t, installed)
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT GeoVersion()").Scan(&v))
		assert.Equal(t, function.Version, v)
	})
}

func TestMacroDDL(t *testing.T) {
	tbl := function.NewTable(codec.New())

	fn, ok := tbl.Lookup("Buffer")
	require.True(t, ok)
	assert.Equal(t, `CREATE OR REPLACE MACRO "Buffer"(a0, a1) AS geosql_buffer(a0, a1)`, macroDDL("Buffer", fn))

	fn, ok = tbl.Lookup("GeoVersion")
	require.True(t, ok)
	assert.Equal(t, `CREATE OR REPLACE MACRO "GeoVersion"() AS geosql_geoversion()`, macroDDL("GeoVersion", fn))

	fn, ok = tbl.Lookup("Contains")
	require.True(t, ok)
	assert.Equal(t, `CREATE OR REPLACE MACRO "GeoContains"(a0, a1) AS geosql_contains(a0, a1)`, macroDDL("GeoContains", fn))
}
