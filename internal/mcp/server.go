package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/graph"
	"github.com/memsvc/memory/internal/lifecycle"
	"github.com/memsvc/memory/internal/memory"
	"github.com/memsvc/memory/internal/validate"
)

const protocolVersion = "2024-11-05"

// Server is the tool façade (C13): a stdio JSON-RPC 2.0 loop that validates
// arguments and dispatches straight into the memory engine, no HTTP hop.
type Server struct {
	svc       *memory.Service
	traverser *graph.Traverser
	lifecycle *lifecycle.Manager
	limits    validate.Limits
	logger    *slog.Logger
}

func NewServer(svc *memory.Service, traverser *graph.Traverser, lc *lifecycle.Manager, limits validate.Limits, logger *slog.Logger) *Server {
	return &Server{svc: svc, traverser: traverser, lifecycle: lc, limits: limits, logger: logger}
}

// Run starts the stdio event loop. Blocks until stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(nil, -32700, "parse error: "+err.Error())
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			s.writeResponse(resp)
		}
	}

	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]string{}}
	default:
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    ServerCapabilities{Tools: &ToolCapabilities{}},
			ServerInfo:      ServerInfo{Name: "memory", Version: "1.0.0"},
		},
	}
}

func (s *Server) handleToolsList(req *Request) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: ToolDefinitions()}}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32602, Message: "invalid params"}}
	}

	var params CallToolParams
	if err := json.Unmarshal(paramsBytes, &params); err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32602, Message: "invalid params: " + err.Error()}}
	}

	result, err := s.dispatchTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: s.errorToRPC(params.Name, err)}
	}

	body, err := json.Marshal(result)
	if err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32603, Message: "marshal result: " + err.Error()}}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  CallToolResult{Content: []ContentBlock{{Type: "text", Text: string(body)}}},
	}
}

// errorToRPC maps a dispatch failure to a JSON-RPC error, matching the
// propagation policy: validation failures surface as InvalidParams, unknown
// tools as MethodNotFound, every other apperr category passes through its
// kind, and anything the taxonomy doesn't recognize is logged and reported
// as a generic internal error (never a stack trace to the client).
func (s *Server) errorToRPC(tool string, err error) *RPCError {
	var unknown *unknownToolError
	if errors.As(err, &unknown) {
		return &RPCError{Code: -32601, Message: err.Error()}
	}

	code, known := categoryRPCCode[apperr.CategoryOf(err)]
	var appErr *apperr.Error
	if !known || !errors.As(err, &appErr) {
		s.logger.Error("tool call failed", "tool", tool, "error", err)
		return &RPCError{Code: -32603, Message: "internal error"}
	}
	return &RPCError{Code: code, Message: err.Error()}
}

var categoryRPCCode = map[apperr.Category]int{
	apperr.InvalidParams: -32602,
	apperr.NotFound:       -32001,
	apperr.Conflict:       -32002,
	apperr.Transient:      -32003,
	apperr.Logic:          -32004,
	apperr.Data:           -32005,
}

func (s *Server) writeResponse(resp *Response) {
	data, _ := json.Marshal(resp)
	fmt.Fprintf(os.Stdout, "%s\n", data)
}

func (s *Server) writeError(id interface{}, code int, message string) {
	s.writeResponse(&Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}})
}
