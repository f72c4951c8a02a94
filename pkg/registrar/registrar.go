// Package registrar installs the function table into a database and removes
// it again. Install and Uninstall both walk the same table, so the two
// surfaces always cover the same set of names.
package registrar

import (
	"context"
	"geosql/pkg/function"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// Registrar is the database-side registration surface.
type Registrar interface {
	// Registered reports whether name is callable from SQL.
	Registered(ctx context.Context, name string) (bool, error)
	Register(ctx context.Context, fn *function.Function) error
	Unregister(ctx context.Context, name string) error
}

// Install registers every function of t unless the version probe is already
// callable, in which case it does nothing. It reports whether anything was
// registered.
func Install(ctx context.Context, r Registrar, t *function.Table) (bool, error) {
	installed, err := r.Registered(ctx, function.ProbeName)
	if err != nil {
		return false, errors.Wrap(err, "failed to probe for installed functions")
	}
	if installed {
		slog.InfoContext(ctx, "spatial functions already installed", "probe", function.ProbeName)
		return false, nil
	}

	fns := t.Functions()
	for _, fn := range fns {
		if err := r.Register(ctx, fn); err != nil {
			return false, errors.Wrapf(err, "failed to register %s", fn.Name)
		}
		slog.DebugContext(ctx, "registered function", "function", fn.Signature())
	}
	slog.InfoContext(ctx, "installed spatial functions", "count", len(fns), "version", function.Version)
	return true, nil
}

// Uninstall unregisters every function of t by name.
func Uninstall(ctx context.Context, r Registrar, t *function.Table) error {
	fns := t.Functions()
	for _, fn := range fns {
		if err := r.Unregister(ctx, fn.Name); err != nil {
			return errors.Wrapf(err, "failed to unregister %s", fn.Name)
		}
	}
	slog.InfoContext(ctx, "uninstalled spatial functions", "count", len(fns))
	return nil
}
