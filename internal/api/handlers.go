package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AIBank-Agent/internal/a2a"
	"AIBank-Agent/internal/a2ui"
	xerrors "AIBank-Agent/internal/errors"
	"AIBank-Agent/internal/events"
	"AIBank-Agent/internal/jsonrpc"
	"AIBank-Agent/internal/observability/alerting"
	"AIBank-Agent/pkg/logger"
)

const (
	maxBodySize  = 1 << 20
	alertTimeout = 5 * time.Second
)

// Channels recorded on interaction events.
const (
	channelChat    = "chat"
	channelA2A     = "a2a"
	channelJSONRPC = "jsonrpc"
)

// ChatRequest is the /chat request body.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the /chat response body.
type ChatResponse struct {
	Text string         `json:"text"`
	A2UI []a2ui.Message `json:"a2ui"`
	Data map[string]any `json:"data"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"model":   s.model,
		"runtime": s.runtimeName,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "message is required"))
		return
	}

	resp, err := s.answer(r.Context(), channelChat, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleA2AMessage(w http.ResponseWriter, r *http.Request) {
	payload, text, ok := s.readA2A(w, r)
	if !ok {
		return
	}
	resp, err := s.answer(r.Context(), channelA2A, text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	message := a2a.NewMessage(a2a.Parts(resp.Text, resp.A2UI))
	if id := jsonrpc.IDOf(payload["id"]); id != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Result(id, message))
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleA2AStream(w http.ResponseWriter, r *http.Request) {
	payload, text, ok := s.readA2A(w, r)
	if !ok {
		return
	}
	resp, err := s.answer(r.Context(), channelA2A, text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := jsonrpc.IDOf(payload["id"])
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	for _, event := range a2a.StreamEvents(a2a.Parts(resp.Text, resp.A2UI)) {
		var line any = event
		if id != nil {
			line = jsonrpc.Result(id, event)
		}
		if err := encoder.Encode(line); err != nil {
			logger.FromContext(r.Context(), s.logger).Warn("write stream event failed", slog.Any("error", err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a2a.Card(s.publicURL))
}

// handleJSONRPC serves the A2A JSON-RPC binding on the root path.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Failure(nil, jsonrpc.CodeParseError, "Parse error"))
		return
	}
	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Failure(nil, jsonrpc.CodeParseError, "Parse error"))
		return
	}
	if req.Method != "message/send" && req.Method != "message/stream" {
		writeJSON(w, http.StatusOK, jsonrpc.Failure(req.ID, jsonrpc.CodeMethodNotFound, "Method not found: "+req.Method))
		return
	}

	var params map[string]any
	if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Failure(req.ID, jsonrpc.CodeInvalidParams, "Invalid params"))
		return
	}
	payload := map[string]any{"params": params}
	text, err := a2a.ExtractUserText(payload)
	if err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Failure(req.ID, jsonrpc.CodeInvalidParams, xerrorMessage(err)))
		return
	}

	resp, err := s.answer(r.Context(), channelJSONRPC, text)
	if err != nil {
		logger.FromContext(r.Context(), s.logger).Error("json-rpc request failed", slog.String("method", req.Method), slog.Any("error", err))
		writeJSON(w, http.StatusOK, jsonrpc.Failure(req.ID, jsonrpc.CodeInternalError, xerrorMessage(err)))
		return
	}
	task := a2a.NewTask(a2a.Parts(resp.Text, resp.A2UI), a2a.ContextID(payload))

	if req.Method == "message/send" {
		writeJSON(w, http.StatusOK, jsonrpc.Result(req.ID, task))
		return
	}
	encoded, err := json.Marshal(jsonrpc.Result(req.ID, task))
	if err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Failure(req.ID, jsonrpc.CodeInternalError, err.Error()))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", encoded)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// readA2A decodes an A2A payload and its user text, writing a 400 on
// failure.
func (s *Server) readA2A(w http.ResponseWriter, r *http.Request) (map[string]any, string, bool) {
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&payload); err != nil {
		s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid request body"))
		return nil, "", false
	}
	text, err := a2a.ExtractUserText(payload)
	if err != nil {
		s.writeError(w, r, err)
		return nil, "", false
	}
	return payload, text, true
}

// answer runs the runtime, renders the chosen template and records the
// interaction.
func (s *Server) answer(ctx context.Context, channel, message string) (*ChatResponse, error) {
	start := time.Now()
	out, template, err := s.render(ctx, message)

	event := events.NewInteraction(channel, template, s.runtimeName, time.Since(start))
	event.Failed = err != nil
	s.recorder.Record(ctx, event)
	return out, err
}

func (s *Server) render(ctx context.Context, message string) (*ChatResponse, string, error) {
	if s.runtime == nil || s.templates == nil {
		return nil, "", xerrors.New(xerrors.CodeInitializationFailure, "runtime is not initialised")
	}
	resp, err := s.runtime.Run(ctx, message)
	if err != nil {
		return nil, "", err
	}
	messages, err := s.templates.Render(resp.TemplateName, resp.Data)
	if err != nil {
		return nil, resp.TemplateName, err
	}
	data := resp.Data
	if data == nil {
		data = map[string]any{}
	}
	return &ChatResponse{Text: resp.Text, A2UI: messages, Data: data}, resp.TemplateName, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := xerrors.HTTPStatusOf(err)
	level := slog.LevelWarn
	if xerrors.SeverityOf(err) == xerrors.SeverityCritical || status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.FromContext(r.Context(), s.logger).Log(r.Context(), level, "request failed", slog.Int("status", status), slog.Any("error", err))
	if level == slog.LevelError && s.alerter != nil {
		alerting.Go(s.alerter, alerting.Event{
			Code:      xerrors.CodeOf(err),
			Message:   err.Error(),
			Severity:  xerrors.SeverityOf(err),
			Source:    alerting.SourceAPI,
			RequestID: logger.RequestID(r.Context()),
			Metadata:  map[string]string{"method": r.Method, "path": r.URL.Path, "status": strconv.Itoa(status)},
		}, alertTimeout)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(xerrors.CodeOf(err)),
		Message: xerrorMessage(err),
	}})
}

func xerrorMessage(err error) string {
	if coded, ok := xerrors.From(err); ok {
		return coded.Message()
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
