// Package aibank is a small Go client for the AIBank assistant HTTP API.
package aibank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync/atomic"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom
// http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// A2UIMimeType marks data parts that carry A2UI messages.
const A2UIMimeType = "application/json+a2ui"

// Client wraps the HTTP interactions with an aibankd instance.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	nextID     atomic.Int64
}

// Health is the /health payload.
type Health struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Runtime string `json:"runtime"`
}

// ChatResponse is the /chat payload.
type ChatResponse struct {
	Text string           `json:"text"`
	A2UI []map[string]any `json:"a2ui"`
	Data map[string]any   `json:"data"`
}

// Part is one piece of an A2A message.
type Part struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message is an A2A message.
type Message struct {
	Kind      string `json:"kind"`
	Role      string `json:"role,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
	Parts     []Part `json:"parts"`
}

// Text returns the first text part.
func (m Message) Text() string {
	for _, part := range m.Parts {
		if part.Kind == "text" {
			return part.Text
		}
	}
	return ""
}

// A2UI returns the A2UI messages carried by data parts.
func (m Message) A2UI() []map[string]any {
	var out []map[string]any
	for _, part := range m.Parts {
		if part.Kind == "data" && part.Metadata["mimeType"] == A2UIMimeType {
			out = append(out, part.Data)
		}
	}
	return out
}

// Task is the result of a JSON-RPC message/send call.
type Task struct {
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	ContextID string `json:"contextId"`
	Status    struct {
		State   string   `json:"state"`
		Message *Message `json:"message,omitempty"`
	} `json:"status"`
}

// AgentCard is the subset of the agent card most clients need.
type AgentCard struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	URL          string `json:"url,omitempty"`
	Capabilities struct {
		Streaming  bool `json:"streaming"`
		Extensions []struct {
			URI      string         `json:"uri"`
			Required bool           `json:"required"`
			Params   map[string]any `json:"params,omitempty"`
		} `json:"extensions"`
	} `json:"capabilities"`
}

// APIError represents an HTTP or JSON-RPC failure.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("aibank api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("aibank api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client. When httpClient is nil a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Health reports the service status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.get(ctx, "/health", &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

// Chat sends a message to /chat.
func (c *Client) Chat(ctx context.Context, message string) (ChatResponse, error) {
	var out ChatResponse
	if err := c.post(ctx, "/chat", map[string]string{"message": message}, &out); err != nil {
		return ChatResponse{}, err
	}
	return out, nil
}

// SendMessage sends text to /a2a/message and returns the agent's message.
func (c *Client) SendMessage(ctx context.Context, text string) (Message, error) {
	var out Message
	if err := c.post(ctx, "/a2a/message", map[string]string{"message": text}, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}

// SendTask calls message/send on the JSON-RPC endpoint. An empty contextID
// starts a new conversation.
func (c *Client) SendTask(ctx context.Context, text, contextID string) (Task, error) {
	message := map[string]any{
		"role":  "user",
		"parts": []Part{{Kind: "text", Text: text}},
	}
	if contextID != "" {
		message["contextId"] = contextID
	}
	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  "message/send",
		"params":  map[string]any{"message": message},
	}

	var envelope struct {
		Result *Task `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.post(ctx, "/", request, &envelope); err != nil {
		return Task{}, err
	}
	if envelope.Error != nil {
		return Task{}, &APIError{
			StatusCode: http.StatusOK,
			Code:       fmt.Sprintf("%d", envelope.Error.Code),
			Message:    envelope.Error.Message,
		}
	}
	if envelope.Result == nil {
		return Task{}, &APIError{StatusCode: http.StatusOK, Message: "empty json-rpc result"}
	}
	return *envelope.Result, nil
}

// AgentCard fetches the well-known agent card.
func (c *Client) AgentCard(ctx context.Context) (AgentCard, error) {
	var out AgentCard
	if err := c.get(ctx, "/.well-known/agent-card.json", &out); err != nil {
		return AgentCard{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	joined := path.Join(c.baseURL.Path, endpoint)
	if endpoint == "/" && joined != "/" {
		joined += "/"
	}
	u := c.baseURL.ResolveReference(&url.URL{Path: joined})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
