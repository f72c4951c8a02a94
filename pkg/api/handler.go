package api

import (
	"encoding/json"
	"fmt"
	"geosql/pkg/codec"
	"geosql/pkg/function"
	"io"
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// APIHandler serves the function table over HTTP.
type APIHandler struct {
	table  *function.Table
	logger *slog.Logger
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(table *function.Table, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		table:  table,
		logger: logger,
	}
}

// FunctionInfo describes one table entry.
type FunctionInfo struct {
	Name      string   `json:"name"`
	Signature string   `json:"signature"`
	Params    []string `json:"params"`
	Result    string   `json:"result"`
	Doc       string   `json:"doc"`
}

func NewFunctionInfo(fn *function.Function) FunctionInfo {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.String()
	}
	return FunctionInfo{
		Name:      fn.Name,
		Signature: fn.Signature(),
		Params:    params,
		Result:    fn.Result.String(),
		Doc:       fn.Doc,
	}
}

// CallRequest holds positional arguments. Geometry arguments are WKT or
// EWKT strings, or GeoJSON geometry objects; BLOB arguments are base64.
type CallRequest struct {
	Args []json.RawMessage `json:"args"`
}

// CallResponse carries the result. Geometry results are given as EWKT in
// Result and as GeoJSON in Geometry.
type CallResponse struct {
	Function string          `json:"function"`
	Result   any             `json:"result"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListFunctionsHandler handles GET requests listing every function.
func (h *APIHandler) ListFunctionsHandler(w http.ResponseWriter, r *http.Request) {
	fns := h.table.Functions()
	out := make([]FunctionInfo, 0, len(fns))
	for _, fn := range fns {
		out = append(out, NewFunctionInfo(fn))
	}
	h.sendJSON(w, http.StatusOK, out)
}

// CallFunctionHandler handles POST requests evaluating one function.
func (h *APIHandler) CallFunctionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	name := r.PathValue("name")
	fn, ok := h.table.Lookup(name)
	if !ok {
		h.sendError(w, http.StatusNotFound, fmt.Sprintf("function %q is not defined", name))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err))
		return
	}
	defer r.Body.Close()

	var req CallRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}
	if len(req.Args) != len(fn.Params) {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("%s expects %d arguments, got %d", fn.Name, len(fn.Params), len(req.Args)))
		return
	}

	args := make([]any, len(req.Args))
	for i, raw := range req.Args {
		v, err := h.decodeArg(fn.Params[i], raw)
		if err != nil {
			h.sendCallError(w, fn.Name, errors.Wrapf(err, "argument %d", i+1))
			return
		}
		args[i] = v
	}

	out, err := fn.Call(args)
	if err != nil {
		h.sendCallError(w, fn.Name, err)
		return
	}

	resp := CallResponse{Function: fn.Name, Result: out}
	if fn.Result == function.Geometry && out != nil {
		if resp.Result, resp.Geometry, err = h.encodeGeometry(out.([]byte)); err != nil {
			h.sendCallError(w, fn.Name, err)
			return
		}
	}
	h.sendJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) decodeArg(p function.Type, raw json.RawMessage) (any, error) {
	if string(raw) == "null" {
		return nil, nil
	}

	switch p {
	case function.Geometry:
		g, err := h.parseGeometry(raw)
		if err != nil {
			return nil, err
		}
		return h.table.Codec().Encode(g, g.SRID())
	case function.Blob:
		var b []byte
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "expected base64 bytes"), function.ErrArgument)
		}
		return b, nil
	case function.Text:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "expected a string"), function.ErrArgument)
		}
		return s, nil
	case function.Integer:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "expected an integer"), function.ErrArgument)
		}
		return n, nil
	case function.Double:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "expected a number"), function.ErrArgument)
		}
		return f, nil
	default:
		return nil, errors.Mark(errors.Newf("unsupported parameter type %s", p), function.ErrArgument)
	}
}

func (h *APIHandler) parseGeometry(raw json.RawMessage) (geom.T, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return h.table.Codec().ParseText(text)
	}

	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "expected WKT or a GeoJSON geometry"), codec.ErrMalformedGeometry)
	}
	return g, nil
}

func (h *APIHandler) encodeGeometry(b []byte) (string, json.RawMessage, error) {
	c := h.table.Codec()
	g, err := c.Decode(b)
	if err != nil {
		return "", nil, err
	}
	text, err := c.SRIDText(g, g.SRID())
	if err != nil {
		return "", nil, err
	}
	logical, err := codec.Logical(g)
	if err != nil {
		return "", nil, err
	}
	gj, err := geojson.Marshal(logical)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to write GeoJSON")
	}
	return text, gj, nil
}

func (h *APIHandler) sendCallError(w http.ResponseWriter, name string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("function call failed", "function", name, "error", err)
	}
	h.sendError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, function.ErrUnknownFunction):
		return http.StatusNotFound
	case errors.Is(err, codec.ErrMalformedGeometry),
		errors.Is(err, codec.ErrUnsupportedDimension),
		errors.Is(err, function.ErrArity),
		errors.Is(err, function.ErrArgument):
		return http.StatusBadRequest
	case errors.Is(err, function.ErrGeometryOperation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// sendError sends an error response as JSON
func (h *APIHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, ErrorResponse{Error: message})
}
