// Package schema manages geometry columns: the storage type, the
// geometry_columns catalog table, and discovery of spatial tables.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/duckdb/duckdb-go/v2"
)

// ErrCatalogOperation marks failures of DDL or catalog statements.
var ErrCatalogOperation = errors.New("catalog operation failed")

// DefaultStorageType is the column type geometry values are stored in.
const DefaultStorageType = "GEOMETRY"

const catalogTable = "geometry_columns"

// GeometryColumn is one row of the geometry_columns catalog.
type GeometryColumn struct {
	Catalog   string `json:"catalog"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	SRID      int    `json:"srid"`
	Type      string `json:"type"`
	Dimension int    `json:"dimension"`
}

type Repository struct {
	connector   *duckdb.Connector
	db          *sql.DB
	storageType string
}

// NewRepository returns a repository over db. connector must be the one db
// was opened from; it backs the Arrow export path. An empty storageType
// means DefaultStorageType.
func NewRepository(connector *duckdb.Connector, db *sql.DB, storageType string) *Repository {
	if storageType == "" {
		storageType = DefaultStorageType
	}
	return &Repository{
		connector:   connector,
		db:          db,
		storageType: storageType,
	}
}

// StorageType returns the geometry column type name.
func (r *Repository) StorageType() string {
	return r.storageType
}

// Bootstrap creates the storage type as a BLOB alias and the catalog table,
// skipping whichever already exists.
func (r *Repository) Bootstrap(ctx context.Context) error {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM duckdb_types() WHERE lower(type_name) = lower(?)`, r.storageType,
	).Scan(&n)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to look up storage type"), ErrCatalogOperation)
	}
	if n == 0 {
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf("CREATE TYPE %s AS BLOB", r.storageType)); err != nil {
			return errors.Mark(errors.Wrapf(err, "failed to create type %s", r.storageType), ErrCatalogOperation)
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		f_table_catalog VARCHAR,
		f_table_schema VARCHAR,
		f_table_name VARCHAR,
		f_geometry_column VARCHAR,
		srid INTEGER,
		"type" VARCHAR,
		coord_dimension INTEGER
	)`, catalogTable)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to create geometry_columns"), ErrCatalogOperation)
	}
	return nil
}

// AddGeometryColumn adds column to table with the storage type and records
// it in geometry_columns. Nothing is validated up front; database errors come
// back marked ErrCatalogOperation.
func (r *Repository) AddGeometryColumn(ctx context.Context, table, column string, srid int, geomType string, dimension int) error {
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteTable(table), quoteIdent(column), r.storageType)
	if _, err := r.db.ExecContext(ctx, alter); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to add column %s to %s", column, table), ErrCatalogOperation)
	}

	// DuckDB reports a BLOB alias as BLOB in its catalogs, so the column is
	// marked with a comment naming the storage type.
	comment := fmt.Sprintf("COMMENT ON COLUMN %s.%s IS '%s'",
		quoteTable(table), quoteIdent(column), strings.ReplaceAll(r.storageType, "'", "''"))
	if _, err := r.db.ExecContext(ctx, comment); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to mark %s.%s as a geometry column", table, column), ErrCatalogOperation)
	}

	insert := fmt.Sprintf(`INSERT INTO %s VALUES ('', '', ?, ?, ?, ?, ?)`, catalogTable)
	if _, err := r.db.ExecContext(ctx, insert, table, column, srid, geomType, dimension); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to register %s.%s in %s", table, column, catalogTable), ErrCatalogOperation)
	}
	return nil
}

// GeometryColumns returns the catalog rows in insertion order.
func (r *Repository) GeometryColumns(ctx context.Context) ([]GeometryColumn, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT f_table_catalog, f_table_schema, f_table_name, f_geometry_column, srid, "type", coord_dimension
		FROM %s`, catalogTable))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read geometry_columns"), ErrCatalogOperation)
	}
	defer rows.Close()

	var out []GeometryColumn
	for rows.Next() {
		var c GeometryColumn
		if err := rows.Scan(&c.Catalog, &c.Schema, &c.Table, &c.Column, &c.SRID, &c.Type, &c.Dimension); err != nil {
			return nil, errors.Wrap(err, "failed to scan geometry_columns row")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSpatialTables returns the tables and views that have at least one
// geometry column, in catalog order.
func (r *Repository) ListSpatialTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type IN ('BASE TABLE', 'VIEW', 'LOCAL TEMPORARY')
		ORDER BY table_catalog, table_schema, table_name`)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to list tables"), ErrCatalogOperation)
	}

	type tableRef struct{ schema, name string }
	var tables []tableRef
	for rows.Next() {
		var t tableRef
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan table row")
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []string
	seen := make(map[string]bool)
	for _, t := range tables {
		spatial, err := r.hasGeometryColumn(ctx, t.schema, t.name)
		if err != nil {
			return nil, err
		}
		if spatial && !seen[t.name] {
			seen[t.name] = true
			out = append(out, t.name)
		}
	}
	return out, nil
}

// hasGeometryColumn matches on the column comment set by AddGeometryColumn,
// or on the data type for storage types DuckDB reports by name.
func (r *Repository) hasGeometryColumn(ctx context.Context, schema, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM duckdb_columns()
		WHERE schema_name = ? AND table_name = ?
			AND (lower(comment) = lower(?) OR lower(data_type) = lower(?))`,
		schema, table, r.storageType, r.storageType,
	).Scan(&n)
	if err != nil {
		return false, errors.Mark(errors.Wrapf(err, "failed to list columns of %s", table), ErrCatalogOperation)
	}
	return n > 0, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteTable quotes each part of a possibly schema-qualified name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}
