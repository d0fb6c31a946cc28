// Package mcpserver exposes the banking gateway as an MCP tool server over
// streamable HTTP (JSON-RPC 2.0 on a single POST endpoint).
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"AIBank-Agent/internal/banking"
	xerrors "AIBank-Agent/internal/errors"
	"AIBank-Agent/internal/jsonrpc"
	"AIBank-Agent/pkg/logger"
)

const (
	// ProtocolVersion is the MCP revision announced on initialize.
	ProtocolVersion = "2025-03-26"
	// ServerName identifies this server to MCP clients.
	ServerName    = "aibank-mcp-server"
	serverVersion = "0.1.0"

	maxRequestSize = 1 << 20
)

// TextContent is an MCP text content block.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the tools/call result.
type CallResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Server dispatches MCP requests to a banking gateway.
type Server struct {
	gateway banking.Gateway
	logger  *slog.Logger
}

// New creates a server over gw.
func New(gw banking.Gateway, l *slog.Logger) *Server {
	if l == nil {
		l = logger.Named("mcp")
	}
	return &Server{gateway: gw, logger: l}
}

// ServeHTTP handles one JSON-RPC message. Notifications are acknowledged
// with 202 and no body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		writeJSON(w, jsonrpc.Failure(nil, jsonrpc.CodeParseError, "Parse error"))
		return
	}
	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, jsonrpc.Failure(nil, jsonrpc.CodeParseError, "Parse error"))
		return
	}

	resp, reply := s.Handle(r.Context(), req)
	if !reply {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, resp)
}

// Handle executes one request. The boolean is false for notifications.
func (s *Server) Handle(ctx context.Context, req jsonrpc.Request) (jsonrpc.Response, bool) {
	if !req.HasID() {
		s.logger.Debug("mcp notification", slog.String("method", req.Method))
		return jsonrpc.Response{}, false
	}

	switch req.Method {
	case "initialize":
		return jsonrpc.Result(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
			"serverInfo":      map[string]any{"name": ServerName, "version": serverVersion},
		}), true
	case "ping":
		return jsonrpc.Result(req.ID, map[string]any{}), true
	case "tools/list":
		return jsonrpc.Result(req.ID, map[string]any{"tools": banking.Tools()}), true
	case "tools/call":
		var params callParams
		if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil || params.Name == "" {
			return jsonrpc.Failure(req.ID, jsonrpc.CodeInvalidParams, "Invalid params"), true
		}
		return jsonrpc.Result(req.ID, s.CallTool(ctx, params.Name, params.Arguments)), true
	default:
		return jsonrpc.Failure(req.ID, jsonrpc.CodeMethodNotFound, "Method not found: "+req.Method), true
	}
}

// CallTool runs a tool and renders its result as indented JSON text. Tool
// failures are reported in-band with IsError set.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) CallResult {
	if args == nil {
		args = map[string]any{}
	}
	result, err := banking.Call(ctx, s.gateway, name, args)
	if err != nil {
		s.logger.Warn("tool call failed", slog.String("tool", name), slog.Any("error", err))
		text := "Unexpected error: " + err.Error()
		if coded, ok := xerrors.From(err); ok {
			text = "Error: " + coded.Message()
		}
		return CallResult{Content: []TextContent{{Type: "text", Text: text}}, IsError: true}
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return CallResult{Content: []TextContent{{Type: "text", Text: "Unexpected error: " + err.Error()}}, IsError: true}
	}
	return CallResult{Content: []TextContent{{Type: "text", Text: string(encoded)}}}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
