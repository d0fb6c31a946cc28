package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AIBank-Agent/internal/a2ui"
	"AIBank-Agent/internal/agent"
	"AIBank-Agent/internal/banking"
	xerrors "AIBank-Agent/internal/errors"
	"AIBank-Agent/internal/events"
	"AIBank-Agent/internal/mcpserver"
	"AIBank-Agent/internal/observability/alerting"
	"AIBank-Agent/internal/observability/metrics"
	"AIBank-Agent/pkg/logger"
)

type capturePublisher struct {
	events []events.Interaction
}

func (c *capturePublisher) Publish(_ context.Context, event events.Interaction) error {
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

type failingRuntime struct{ err error }

func (f failingRuntime) Run(context.Context, string) (*agent.Response, error) { return nil, f.err }

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	templates, err := a2ui.Load()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	gw := banking.NewMockGateway(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	rt := agent.New(gw, agent.WithLogger(logger.Discard()))
	base := []Option{
		WithLogger(logger.Discard()),
		WithRuntimeInfo("deterministic", "gpt-5-mini"),
		WithMCPHandler(mcpserver.New(gw, logger.Discard())),
	}
	return NewServer(":0", rt, templates, append(base, opts...)...)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t).Handler(), http.MethodGet, "/health", "")
	out := decodeBody(t, rec)
	if out["status"] != "ok" || out["runtime"] != "deterministic" || out["model"] != "gpt-5-mini" {
		t.Fatalf("unexpected health: %v", out)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()
	newTestServer(t).Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-7" {
		t.Fatalf("unexpected request id: %q", got)
	}
}

func TestChatOverview(t *testing.T) {
	publisher := &capturePublisher{}
	recorder := events.NewRecorder(publisher, events.DriverLog, nil)
	rec := do(t, newTestServer(t, WithRecorder(recorder)).Handler(), http.MethodPost, "/chat", `{"message":"show my accounts"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "Here is an overview of all your accounts." || len(resp.A2UI) != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Data["headerText"].(string), "Net Worth") {
		t.Fatalf("unexpected data: %v", resp.Data)
	}
	if !strings.Contains(rec.Body.String(), `"valueString":"Net Worth: -£175363.46"`) {
		t.Fatalf("rendered surface should carry the data model: %s", rec.Body.String())
	}

	var generic any
	if err := json.Unmarshal(mustMarshal(t, resp.A2UI), &generic); err != nil {
		t.Fatalf("decode a2ui: %v", err)
	}
	if err := a2ui.Validate(generic); err != nil {
		t.Fatalf("rendered a2ui should satisfy the schema: %v", err)
	}

	if err := recorder.Close(); err != nil {
		t.Fatalf("close recorder: %v", err)
	}
	if len(publisher.events) != 1 || publisher.events[0].Template != agent.TemplateAccountOverview ||
		publisher.events[0].Channel != channelChat {
		t.Fatalf("unexpected interactions: %+v", publisher.events)
	}
}

func TestChatBadRequests(t *testing.T) {
	h := newTestServer(t).Handler()
	for _, body := range []string{`{`, `{"message":"   "}`} {
		rec := do(t, h, http.MethodPost, "/chat", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, rec.Code)
		}
		out := decodeBody(t, rec)
		if out["error"].(map[string]any)["code"] != string(xerrors.CodeInvalidArgument) {
			t.Fatalf("unexpected error body: %v", out)
		}
	}
}

func TestChatRuntimeError(t *testing.T) {
	templates, _ := a2ui.Load()
	srv := NewServer(":0", failingRuntime{err: xerrors.New(xerrors.CodeNotFound, "Account not found")}, templates,
		WithLogger(logger.Discard()))
	rec := do(t, srv.Handler(), http.MethodPost, "/chat", `{"message":"mortgage"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	out := decodeBody(t, rec)["error"].(map[string]any)
	if out["code"] != "NOT_FOUND" || out["message"] != "Account not found" {
		t.Fatalf("unexpected error: %v", out)
	}
}

func TestA2AMessage(t *testing.T) {
	h := newTestServer(t).Handler()

	out := decodeBody(t, do(t, h, http.MethodPost, "/a2a/message", `{"message":"show my mortgage"}`))
	if out["kind"] != "message" {
		t.Fatalf("unexpected envelope: %v", out)
	}
	parts := out["parts"].([]any)
	first := parts[0].(map[string]any)
	if first["kind"] != "text" || first["text"] != "Here is your mortgage summary." {
		t.Fatalf("unexpected first part: %v", first)
	}
	second := parts[1].(map[string]any)
	if second["metadata"].(map[string]any)["mimeType"] != "application/json+a2ui" {
		t.Fatalf("unexpected data part: %v", second)
	}

	wrapped := decodeBody(t, do(t, h, http.MethodPost, "/a2a/message",
		`{"jsonrpc":"2.0","id":"req-1","params":{"message":{"parts":[{"kind":"text","text":"savings"}]}}}`))
	if wrapped["id"] != "req-1" || wrapped["result"].(map[string]any)["kind"] != "message" {
		t.Fatalf("unexpected json-rpc envelope: %v", wrapped)
	}

	rec := do(t, h, http.MethodPost, "/a2a/message", `{"message":{"parts":[]}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without text, got %d", rec.Code)
	}
}

func TestA2AStream(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := do(t, h, http.MethodPost, "/a2a/message/stream", `{"id":3,"message":"show my credit card"}`)
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	var lines []map[string]any
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("each line should be json: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 4 {
		t.Fatalf("expected a text part and three a2ui parts, got %d", len(lines))
	}
	result := lines[0]["result"].(map[string]any)
	if lines[0]["id"] != float64(3) || result["kind"] != "message_part" {
		t.Fatalf("unexpected event: %v", lines[0])
	}
}

func TestAgentCard(t *testing.T) {
	h := newTestServer(t, WithPublicURL("http://bank.test")).Handler()
	for _, path := range []string{"/a2a/agent-card", "/.well-known/agent-card.json"} {
		out := decodeBody(t, do(t, h, http.MethodGet, path, ""))
		if out["name"] != "aibank-agent" || out["url"] != "http://bank.test" {
			t.Fatalf("unexpected card at %s: %v", path, out)
		}
	}
}

func TestJSONRPCMessageSend(t *testing.T) {
	h := newTestServer(t).Handler()
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","contextId":"ctx-1",` +
		`"parts":[{"kind":"text","text":"show my accounts"}]}}}`
	out := decodeBody(t, do(t, h, http.MethodPost, "/", body))
	task := out["result"].(map[string]any)
	status := task["status"].(map[string]any)
	if task["kind"] != "task" || task["contextId"] != "ctx-1" || status["state"] != "completed" {
		t.Fatalf("unexpected task: %v", task)
	}
	parts := status["message"].(map[string]any)["parts"].([]any)
	if len(parts) != 4 {
		t.Fatalf("unexpected parts: %v", parts)
	}
}

func TestJSONRPCMessageStream(t *testing.T) {
	h := newTestServer(t).Handler()
	body := `{"jsonrpc":"2.0","id":9,"method":"message/stream","params":{"message":{"parts":[{"kind":"text","text":"hi"}]}}}`
	rec := do(t, h, http.MethodPost, "/", body)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	payload := strings.TrimSpace(strings.TrimPrefix(rec.Body.String(), "data: "))
	var out map[string]any
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("event should carry json: %v", err)
	}
	if out["result"].(map[string]any)["kind"] != "task" {
		t.Fatalf("unexpected event: %v", out)
	}
}

func TestJSONRPCErrors(t *testing.T) {
	h := newTestServer(t).Handler()
	cases := []struct {
		body string
		code float64
	}{
		{`{broken`, -32700},
		{`{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{}}`, -32601},
		{`{"jsonrpc":"2.0","id":1,"method":"message/send"}`, -32602},
		{`{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"parts":[]}}}`, -32602},
	}
	for _, tc := range cases {
		out := decodeBody(t, do(t, h, http.MethodPost, "/", tc.body))
		errObj, ok := out["error"].(map[string]any)
		if !ok || errObj["code"] != tc.code {
			t.Fatalf("unexpected response for %s: %v", tc.body, out)
		}
	}
}

func TestMCPAndMetricsMounted(t *testing.T) {
	reg := metrics.New("aibank_test")
	h := newTestServer(t, WithMetrics(reg)).Handler()

	out := decodeBody(t, do(t, h, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if tools := out["result"].(map[string]any)["tools"].([]any); len(tools) != 5 {
		t.Fatalf("unexpected tools: %v", tools)
	}

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `aibank_test_http_requests_total{code="200",handler="/mcp",method="POST"} 1`) {
		t.Fatalf("request should be counted:\n%s", rec.Body.String())
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

type stubNotifier struct {
	events chan alerting.Event
}

func (s *stubNotifier) Channel() alerting.Channel { return alerting.ChannelLog }

func (s *stubNotifier) Notify(_ context.Context, event alerting.Event) error {
	s.events <- event
	return nil
}

func TestServerErrorsRaiseAlerts(t *testing.T) {
	notifier := &stubNotifier{events: make(chan alerting.Event, 4)}
	templates, _ := a2ui.Load()
	srv := NewServer(":0", failingRuntime{err: xerrors.New(xerrors.CodeNotFound, "Account not found")}, templates,
		WithLogger(logger.Discard()), WithAlerter(alerting.NewFanout(notifier)))
	h := srv.Handler()

	if rec := do(t, h, http.MethodPost, "/chat", `{"message":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/chat", `{"message":"mortgage"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	select {
	case event := <-notifier.events:
		if event.Code != xerrors.CodeNotFound || event.Source != alerting.SourceAPI ||
			event.Metadata["path"] != "/chat" || event.RequestID == "" {
			t.Fatalf("unexpected alert: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an alert for the server error")
	}
	select {
	case event := <-notifier.events:
		t.Fatalf("client errors should not alert: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}
