package main

import (
	"context"
	"database/sql"
	"geosql/pkg/codec"
	"geosql/pkg/config"
	"geosql/pkg/function"
	"geosql/pkg/metrics"
	"geosql/pkg/registrar"
	"geosql/pkg/schema"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/duckdb/duckdb-go/v2"
	"github.com/spf13/cobra"
)

var (
	envFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:           "geosql",
	Short:         "spatial SQL functions for DuckDB",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "load settings from this .env file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "DuckDB database file (overrides GEOSQL_DB_PATH)")

	rootCmd.AddCommand(
		installCmd,
		uninstallCmd,
		functionsCmd,
		tablesCmd,
		addColumnCmd,
		exportCmd,
		serveCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// runtime holds everything a command needs against one database.
type runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	connector *duckdb.Connector
	db        *sql.DB
	conn      *sql.Conn
	collector *metrics.Collector
	table     *function.Table
	repo      *schema.Repository
}

func loadConfig() (config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return logger
}

// openRuntime opens the database, creates the catalog objects and pins one
// connection for function registration.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: newLogger(cfg)}

	rt.connector, err = duckdb.NewConnector(cfg.DBPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create DuckDB connector")
	}
	rt.db = sql.OpenDB(rt.connector)

	rt.conn, err = rt.db.Conn(ctx)
	if err != nil {
		rt.close()
		return nil, errors.Wrap(err, "failed to open DuckDB connection")
	}

	rt.collector = metrics.NewCollector()
	rt.table = function.NewTable(codec.New(), function.WithObserver(rt.collector))
	rt.repo = schema.NewRepository(rt.connector, rt.db, cfg.StorageType)

	if err := rt.repo.Bootstrap(ctx); err != nil {
		rt.close()
		return nil, err
	}
	rt.logger.Debug("database opened", "path", cfg.DBPath, "storage_type", rt.repo.StorageType())
	return rt, nil
}

func (rt *runtime) registrar() registrar.Registrar {
	return registrar.NewDuckDB(rt.conn)
}

func (rt *runtime) close() {
	if rt.conn != nil {
		rt.conn.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.connector != nil {
		rt.connector.Close()
	}
}
