// Package api exposes the resource clients as JSON tool endpoints. Each
// request runs exactly one client operation and returns its result or its
// classified failure.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ncmcp/ncclient/internal/metrics"
	"github.com/ncmcp/ncclient/ncerr"
	"github.com/ncmcp/ncclient/nextcloud"
	"github.com/ncmcp/ncclient/schedule"
)

// maxArgsSize bounds a tool request body.
const maxArgsSize = 10 << 20

// Tool runs one operation with raw JSON arguments.
type Tool func(ctx context.Context, args json.RawMessage) (any, error)

type Server struct {
	nc     *nextcloud.Client
	engine *schedule.Engine
	logger *slog.Logger
	tools  map[string]Tool
}

func NewServer(nc *nextcloud.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		nc:     nc,
		engine: schedule.NewEngine(logger),
		logger: logger,
		tools:  map[string]Tool{},
	}
	s.registerTools()
	return s
}

// Router wires the tool, health and metrics endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/tools", s.listTools)
	r.Post("/tools/{name}", s.callTool)
	return r
}

func (s *Server) register(name string, t Tool) {
	if _, dup := s.tools[name]; dup {
		panic("duplicate tool " + name)
	}
	s.tools[name] = t
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"tools": names})
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tool, ok := s.tools[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "unknown_tool", Message: fmt.Sprintf("unknown tool %q", name)}})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxArgsSize))
	if err != nil {
		s.writeError(w, r, name, &argumentError{err: err})
		return
	}

	result, err := tool(r.Context(), json.RawMessage(body))
	if err != nil {
		s.writeError(w, r, name, err)
		return
	}
	s.logger.Debug("tool call succeeded", "tool", name, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// argumentError is a request whose arguments could not be decoded or are
// invalid for the operation.
type argumentError struct {
	err error
}

func (e *argumentError) Error() string { return "invalid arguments: " + e.err.Error() }
func (e *argumentError) Unwrap() error { return e.err }

func invalidArgs(format string, a ...any) error {
	return &argumentError{err: fmt.Errorf(format, a...)}
}

// statusFor maps a failure to the HTTP status of the tool response.
func statusFor(err error) (int, string) {
	var argErr *argumentError
	if errors.As(err, &argErr) {
		return http.StatusBadRequest, "invalid_arguments"
	}
	switch kind := ncerr.KindOf(err); kind {
	case ncerr.KindNotFound:
		return http.StatusNotFound, string(kind)
	case ncerr.KindConflict:
		return http.StatusConflict, string(kind)
	case ncerr.KindForbidden:
		return http.StatusForbidden, string(kind)
	case ncerr.KindRateLimited:
		return http.StatusTooManyRequests, string(kind)
	case ncerr.KindMalformed:
		return http.StatusUnprocessableEntity, string(kind)
	case ncerr.KindRemote:
		return http.StatusBadGateway, string(kind)
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, tool string, err error) {
	status, kind := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "tool call failed",
		"tool", tool,
		"kind", kind,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err)
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: err.Error(), Status: ncerr.StatusOf(err)}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bind adapts a typed operation to a Tool. Unknown argument fields are
// rejected. An empty body decodes to the zero value of A.
func bind[A any](fn func(ctx context.Context, args A) (any, error)) Tool {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args A
		if len(bytes.TrimSpace(raw)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&args); err != nil {
				return nil, &argumentError{err: err}
			}
		}
		return fn(ctx, args)
	}
}
