package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/cockroachdb/errors"
	"github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	connector, err := duckdb.NewConnector("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { connector.Close() })

	db := sql.OpenDB(connector)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(connector, db, "")
	require.NoError(t, repo.Bootstrap(context.Background()))
	return repo, db
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepository(t)

	t.Run("is repeatable", func(t *testing.T) {
		require.NoError(t, repo.Bootstrap(ctx))
	})

	t.Run("creates the storage type", func(t *testing.T) {
		var n int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM duckdb_types() WHERE lower(type_name) = 'geometry'`).Scan(&n))
		assert.GreaterOrEqual(t, n, 1)
	})

	t.Run("catalog starts empty", func(t *testing.T) {
		cols, err := repo.GeometryColumns(ctx)
		require.NoError(t, err)
		assert.Empty(t, cols)
	})
}

func TestAddGeometryColumn(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepository(t)

	_, err := db.ExecContext(ctx, "CREATE TABLE roads (id INTEGER, name VARCHAR)")
	require.NoError(t, err)

	require.NoError(t, repo.AddGeometryColumn(ctx, "roads", "the_geom", 27582, "LINESTRING", 2))

	cols, err := repo.GeometryColumns(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, GeometryColumn{
		Table:     "roads",
		Column:    "the_geom",
		SRID:      27582,
		Type:      "LINESTRING",
		Dimension: 2,
	}, cols[0])

	t.Run("column is marked in the catalog", func(t *testing.T) {
		var dataType, comment string
		err := db.QueryRowContext(ctx, `
			SELECT data_type, comment FROM duckdb_columns()
			WHERE table_name = 'roads' AND column_name = 'the_geom'`,
		).Scan(&dataType, &comment)
		require.NoError(t, err)
		assert.Equal(t, "BLOB", dataType)
		assert.Equal(t, DefaultStorageType, comment)
	})

	t.Run("column accepts stored geometry bytes", func(t *testing.T) {
		_, err := db.ExecContext(ctx, "INSERT INTO roads VALUES (1, 'main', ?)", []byte{0x01, 0x02})
		require.NoError(t, err)
	})

	t.Run("missing table", func(t *testing.T) {
		err := repo.AddGeometryColumn(ctx, "no_such_table", "the_geom", 4326, "POINT", 2)
		assert.True(t, errors.Is(err, ErrCatalogOperation))
	})

	t.Run("duplicate column", func(t *testing.T) {
		err := repo.AddGeometryColumn(ctx, "roads", "the_geom", 4326, "POINT", 2)
		assert.True(t, errors.Is(err, ErrCatalogOperation))

		cols, err := repo.GeometryColumns(ctx)
		require.NoError(t, err)
		assert.Len(t, cols, 1, "failed ALTER adds no catalog row")
	})
}

func TestListSpatialTables(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepository(t)

	for _, stmt := range []string{
		"CREATE TABLE parcels (id INTEGER)",
		"CREATE TABLE owners (id INTEGER, name VARCHAR)",
		"CREATE TABLE blobs (id INTEGER, payload BLOB)",
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	tables, err := repo.ListSpatialTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	require.NoError(t, repo.AddGeometryColumn(ctx, "parcels", "shape", 4326, "POLYGON", 2))

	tables, err = repo.ListSpatialTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "parcels")
	assert.NotContains(t, tables, "owners")
	assert.NotContains(t, tables, "blobs")
	assert.NotContains(t, tables, "geometry_columns")

	require.NoError(t, repo.AddGeometryColumn(ctx, "owners", "home", 4326, "POINT", 2))
	tables, err = repo.ListSpatialTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"owners", "parcels"}, tables)
}

func TestExportParquet(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepository(t)

	_, err := db.ExecContext(ctx, "CREATE TABLE sites (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, repo.AddGeometryColumn(ctx, "sites", "location", 4326, "POINT", 2))
	_, err = db.ExecContext(ctx, "INSERT INTO sites VALUES (1, ?), (2, ?)", []byte{0x01}, []byte{0x02})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sites.parquet")
	require.NoError(t, repo.ExportParquet(ctx, "sites", path))

	pf, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer pf.Close()

	assert.Equal(t, int64(2), pf.NumRows())

	meta := pf.MetaData().KeyValueMetadata().FindValue(ParquetMetadataKey)
	require.NotNil(t, meta)
	var cols []GeometryColumn
	require.NoError(t, json.Unmarshal([]byte(*meta), &cols))
	require.Len(t, cols, 1)
	assert.Equal(t, "location", cols[0].Column)

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: 1024}, memory.NewGoAllocator())
	require.NoError(t, err)
	schema, err := reader.Schema()
	require.NoError(t, err)
	_, found := schema.FieldsByName("location")
	assert.True(t, found)

	t.Run("missing table", func(t *testing.T) {
		err := repo.ExportParquet(ctx, "nope", filepath.Join(t.TempDir(), "nope.parquet"))
		assert.Error(t, err)
	})
}
