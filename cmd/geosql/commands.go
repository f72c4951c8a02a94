package main

import (
	"context"
	"encoding/json"
	"fmt"
	"geosql/pkg/api"
	"geosql/pkg/codec"
	"geosql/pkg/flight"
	"geosql/pkg/function"
	"geosql/pkg/registrar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var installDryRun bool

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "register the spatial functions in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if installDryRun {
			return dryRunInstall(cmd)
		}

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		installed, err := registrar.Install(ctx, rt.registrar(), rt.table)
		if err != nil {
			return err
		}
		if installed {
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d functions (version %s)\n", len(rt.table.Functions()), function.Version)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "already installed")
		}
		return nil
	},
}

// dryRunInstall registers the table into memory and prints what a real
// install would create, without opening the database.
func dryRunInstall(cmd *cobra.Command) error {
	mem := registrar.NewMemory()
	table := function.NewTable(codec.New())
	if _, err := registrar.Install(cmd.Context(), mem, table); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range mem.Names() {
		fn, _ := table.Lookup(name)
		fmt.Fprintln(out, fn.Signature())
	}
	fmt.Fprintf(out, "would install %d functions (version %s)\n", len(mem.Names()), function.Version)
	return nil
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "remove the spatial functions from the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		return registrar.Uninstall(ctx, rt.registrar(), rt.table)
	},
}

var functionsJSON bool

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "list the function table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fns := function.NewTable(codec.New()).Functions()
		out := cmd.OutOrStdout()

		if functionsJSON {
			infos := make([]api.FunctionInfo, 0, len(fns))
			for _, fn := range fns {
				infos = append(infos, api.NewFunctionInfo(fn))
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, fn := range fns {
			fmt.Fprintf(w, "%s\t%s\n", fn.Signature(), fn.Doc)
		}
		return w.Flush()
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "list tables with at least one geometry column",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		tables, err := rt.repo.ListSpatialTables(ctx)
		if err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var addColumnOpts struct {
	srid      int
	geomType  string
	dimension int
}

var addColumnCmd = &cobra.Command{
	Use:   "add-column <table> <column>",
	Short: "add a geometry column and record it in geometry_columns",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		return rt.repo.AddGeometryColumn(ctx, args[0], args[1], addColumnOpts.srid, addColumnOpts.geomType, addColumnOpts.dimension)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <table> <file.parquet>",
	Short: "write a table to Parquet with its geometry column metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		return rt.repo.ExportParquet(ctx, args[0], args[1])
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "install the functions and serve the REST and Flight endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		if _, err := registrar.Install(ctx, rt.registrar(), rt.table); err != nil {
			return err
		}

		apiServer := api.NewAPIServer(rt.table, rt.collector.Handler(), rt.cfg.RESTPort, rt.logger)
		apiErr := make(chan error, 1)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				apiErr <- err
			}
			close(apiErr)
		}()

		flightErr := make(chan error, 1)
		go func() {
			flightErr <- flight.StartFlightServer(ctx, rt.table, rt.cfg.FlightPort, rt.logger)
		}()

		select {
		case <-ctx.Done():
		case err := <-apiErr:
			if err != nil {
				stop()
				return errors.Wrap(err, "REST API server failed")
			}
		case err := <-flightErr:
			if err != nil {
				return errors.Wrap(err, "Flight server failed")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			rt.logger.Warn("REST API server shutdown", "error", err)
		}
		return nil
	},
}

func init() {
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "list what would be installed without touching the database")

	functionsCmd.Flags().BoolVar(&functionsJSON, "json", false, "print the table as JSON")

	addColumnCmd.Flags().IntVar(&addColumnOpts.srid, "srid", 0, "spatial reference id recorded for the column")
	addColumnCmd.Flags().StringVar(&addColumnOpts.geomType, "type", "GEOMETRY", "geometry type recorded for the column")
	addColumnCmd.Flags().IntVar(&addColumnOpts.dimension, "dim", 2, "coordinate dimension recorded for the column")
}
