package flight

import (
	"encoding/json"
	"geosql/pkg/function"
	"io"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
)

// DefaultResultColumn names the column appended to every output batch.
const DefaultResultColumn = "result"

// Action is the JSON command carried by the first DoExchange message, in
// AppMetadata or in the descriptor's Cmd.
type Action struct {
	Operation string `json:"operation"`
	Function  string `json:"function"`
	Column    string `json:"column"`
}

// GeoFlightServer evaluates table functions over streamed record batches.
type GeoFlightServer struct {
	flight.BaseFlightServer
	table  *function.Table
	alloc  memory.Allocator
	logger *slog.Logger
}

func NewGeoFlightServer(table *function.Table, logger *slog.Logger) *GeoFlightServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeoFlightServer{
		table:  table,
		alloc:  memory.NewGoAllocator(),
		logger: logger,
	}
}

func (s *GeoFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	desc, err := stream.Recv()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	action, err := parseAction(desc)
	if err != nil {
		return err
	}
	s.logger.Info("exchange started", "operation", action.Operation, "function", action.Function)

	switch action.Operation {
	case "call":
		return s.handleCall(stream, action)
	default:
		return errors.Newf("unsupported operation: %s", action.Operation)
	}
}

func parseAction(desc *flight.FlightData) (Action, error) {
	var raw []byte
	if len(desc.AppMetadata) > 0 {
		raw = desc.AppMetadata
	} else if desc.FlightDescriptor != nil && len(desc.FlightDescriptor.Cmd) > 0 {
		raw = desc.FlightDescriptor.Cmd
	}

	var action Action
	if err := json.Unmarshal(raw, &action); err != nil || action.Operation == "" {
		// Fallback: treat the metadata as a raw string (the operation name)
		action = Action{Operation: string(raw)}
	}
	if action.Column == "" {
		action.Column = DefaultResultColumn
	}
	return action, nil
}

func (s *GeoFlightServer) handleCall(stream flight.FlightService_DoExchangeServer, action Action) error {
	fn, ok := s.table.Lookup(action.Function)
	if !ok {
		return errors.Mark(errors.Newf("function %q is not defined", action.Function), function.ErrUnknownFunction)
	}

	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return errors.Wrap(err, "failed to read input stream")
	}
	defer reader.Release()

	var (
		writer *flight.Writer
		schema *arrow.Schema
		rows   int64
	)
	defer func() {
		if writer != nil {
			writer.Close()
		}
	}()

	for reader.Next() {
		rec := reader.RecordBatch()
		if schema == nil {
			if schema, err = outputSchema(rec.Schema(), fn, action.Column); err != nil {
				return err
			}
			writer = flight.NewRecordWriter(stream, ipc.WithSchema(schema))
		}

		out, err := s.evaluate(fn, rec, schema)
		if err != nil {
			return err
		}
		err = writer.Write(out)
		out.Release()
		if err != nil {
			return errors.Wrap(err, "failed to write result batch")
		}
		rows += rec.NumRows()
	}
	if err := reader.Err(); err != nil {
		return err
	}
	if schema == nil {
		return errors.New("no records received")
	}

	s.logger.Info("exchange finished", "function", fn.Name, "rows", rows)
	return nil
}
