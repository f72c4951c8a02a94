package flight

import (
	"context"
	"fmt"
	"geosql/pkg/function"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
)

// NewFlightServer wires a GeoFlightServer into a Flight server. opts are
// passed to the underlying gRPC server.
func NewFlightServer(table *function.Table, logger *slog.Logger, opts ...grpc.ServerOption) flight.Server {
	server := flight.NewServerWithMiddleware(nil, opts...)
	server.RegisterFlightService(NewGeoFlightServer(table, logger))
	return server
}

// StartFlightServer listens on port and serves until ctx is cancelled.
func StartFlightServer(ctx context.Context, table *function.Table, port int, logger *slog.Logger, opts ...grpc.ServerOption) error {
	if logger == nil {
		logger = slog.Default()
	}
	addr := fmt.Sprintf(":%d", port)
	server := NewFlightServer(table, logger, opts...)
	if err := server.Init(addr); err != nil {
		return err
	}

	served := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("stopping Flight server")
			server.Shutdown()
		case <-served:
		}
	}()

	logger.Info("starting Flight server", "addr", server.Addr().String())
	err := server.Serve()
	close(served)
	return err
}
