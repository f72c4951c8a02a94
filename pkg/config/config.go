// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	// DBPath is the DuckDB database file. Empty means in-memory.
	DBPath      string
	StorageType string
	RESTPort    int
	FlightPort  int
	LogLevel    slog.Level
}

func Default() Config {
	return Config{
		StorageType: "GEOMETRY",
		RESTPort:    8080,
		FlightPort:  50051,
		LogLevel:    slog.LevelInfo,
	}
}

// Load reads files (".env" when none are given) into the environment and
// builds a Config from it. Missing files are not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug(".env file not loaded", "error", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from GEOSQL_* variables over the defaults.
func FromEnv() (Config, error) {
	cfg := Default()

	cfg.DBPath = os.Getenv("GEOSQL_DB_PATH")
	if v := os.Getenv("GEOSQL_STORAGE_TYPE"); v != "" {
		cfg.StorageType = v
	}

	var err error
	if cfg.RESTPort, err = intEnv("GEOSQL_REST_PORT", cfg.RESTPort); err != nil {
		return cfg, err
	}
	if cfg.FlightPort, err = intEnv("GEOSQL_FLIGHT_PORT", cfg.FlightPort); err != nil {
		return cfg, err
	}
	if v := os.Getenv("GEOSQL_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return cfg, errors.Wrapf(err, "invalid GEOSQL_LOG_LEVEL %q", v)
		}
	}
	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, errors.Wrapf(err, "invalid %s %q", key, v)
	}
	return n, nil
}
