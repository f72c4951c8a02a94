package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/cockroachdb/errors"
	"github.com/duckdb/duckdb-go/v2"
)

// ParquetMetadataKey is the parquet key/value entry listing the exported
// table's geometry columns as JSON.
const ParquetMetadataKey = "geosql"

// ExportParquet streams table through DuckDB's Arrow interface into a
// Snappy-compressed parquet file at path. Geometry columns stay as their
// stored EWKB bytes.
func (r *Repository) ExportParquet(ctx context.Context, table, path string) error {
	columns, err := r.geometryColumnsOf(ctx, table)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(columns)
	if err != nil {
		return errors.Wrap(err, "failed to encode geometry column metadata")
	}

	conn, err := r.connector.Connect(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get db connection")
	}
	defer conn.Close()

	ar, err := duckdb.NewArrowFromConn(conn)
	if err != nil {
		return errors.Wrap(err, "failed to create arrow from duckdb")
	}

	reader, err := ar.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteTable(table)))
	if err != nil {
		return errors.Wrapf(err, "failed to query %s", table)
	}
	defer reader.Release()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create parquet file")
	}
	defer f.Close()

	writer, err := pqarrow.NewFileWriter(
		reader.Schema(),
		f,
		parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
		pqarrow.DefaultWriterProps(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create parquet writer")
	}
	if err := writer.AppendKeyValueMetadata(ParquetMetadataKey, string(meta)); err != nil {
		writer.Close()
		return errors.Wrap(err, "failed to write parquet metadata")
	}

	var rows int64
	for reader.Next() {
		rec := reader.RecordBatch()
		if err := writer.WriteBuffered(rec); err != nil {
			writer.Close()
			return errors.Wrap(err, "failed to write record batch")
		}
		rows += rec.NumRows()
	}
	if err := reader.Err(); err != nil {
		writer.Close()
		return errors.Wrapf(err, "failed to read %s", table)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "failed to finish parquet file")
	}

	slog.InfoContext(ctx, "exported table", "table", table, "rows", rows, "path", path, "geometry_columns", len(columns))
	return nil
}

func (r *Repository) geometryColumnsOf(ctx context.Context, table string) ([]GeometryColumn, error) {
	all, err := r.GeometryColumns(ctx)
	if err != nil {
		return nil, err
	}
	out := []GeometryColumn{}
	for _, c := range all {
		if c.Table == table {
			out = append(out, c)
		}
	}
	return out, nil
}
