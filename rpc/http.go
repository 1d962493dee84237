package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"earlybird/native/endpoint"
	"earlybird/native/rukh"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server exposes the engine surface over JSON-RPC on HTTP. It is an operator
// surface: callers identify themselves by address in the params and the
// engine enforces its own authority checks.
type Server struct {
	engine   *rukh.Engine
	send     *rukh.SendEngine
	registry *endpoint.Registry
	log      *slog.Logger
}

// NewServer wires a server around the engine, its send module, and the
// routing registry.
func NewServer(engine *rukh.Engine, send *rukh.SendEngine, registry *endpoint.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, send: send, registry: registry, log: log}
}

// Router builds the HTTP handler: the JSON-RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "failed to read request body")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeError(w, req.ID, codeInvalidRequest, "invalid request envelope")
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method))
		return
	}
	result, err := handler(req.Params)
	if err != nil {
		s.log.Warn("rpc call failed", "method", req.Method, "err", err)
		writeError(w, req.ID, rpcCode(err), err.Error())
		return
	}
	writeResult(w, req.ID, result)
}

func rpcCode(err error) int {
	switch {
	case errors.Is(err, errBadParams):
		return codeInvalidParams
	default:
		return codeServerError
	}
}

var errBadParams = errors.New("invalid params")

func decodeParams(params []json.RawMessage, out interface{}) error {
	if len(params) != 1 {
		return fmt.Errorf("%w: expected a single object parameter", errBadParams)
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return fmt.Errorf("%w: %v", errBadParams, err)
	}
	return nil
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != 20 {
		return addr, fmt.Errorf("%w: expected 20-byte hex address", errBadParams)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseHash(value string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != 32 {
		return hash, fmt.Errorf("%w: expected 32-byte hex hash", errBadParams)
	}
	copy(hash[:], raw)
	return hash, nil
}

func parseBytes(value string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: expected hex bytes", errBadParams)
	}
	return raw, nil
}

func encodeHash(hash [32]byte) string { return "0x" + hex.EncodeToString(hash[:]) }

func encodeBytes(raw []byte) string { return "0x" + hex.EncodeToString(raw) }
