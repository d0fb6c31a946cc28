// Package a2a maps runtime responses onto Agent-to-Agent protocol messages,
// tasks and stream events, and extracts the user's text from inbound
// payloads.
package a2a

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	xerrors "AIBank-Agent/internal/errors"
)

// MimeTypeA2UI tags data parts that carry an A2UI message.
const MimeTypeA2UI = "application/json+a2ui"

// Part kinds.
const (
	KindText = "text"
	KindData = "data"
)

// Task states.
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
)

const roleAgent = "agent"

// Part is one piece of a message.
type Part struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Data     any            `json:"data,omitempty"`
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

// TaskStatus is the state of a task with its final message.
type TaskStatus struct {
	State   string   `json:"state"`
	Message *Message `json:"message,omitempty"`
}

// Task is the result of a message/send call.
type Task struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
}

// StreamEvent is one line of the NDJSON message stream.
type StreamEvent struct {
	Kind string `json:"kind"`
	Part Part   `json:"part"`
}

// Parts builds a text part followed by one data part per A2UI message.
func Parts[M any](text string, messages []M) []Part {
	parts := make([]Part, 0, len(messages)+1)
	parts = append(parts, Part{Kind: KindText, Text: text})
	for _, msg := range messages {
		parts = append(parts, Part{
			Kind:     KindData,
			Data:     msg,
			Metadata: map[string]any{"mimeType": MimeTypeA2UI},
		})
	}
	return parts
}

// NewMessage wraps parts in a bare message envelope.
func NewMessage(parts []Part) Message {
	return Message{Kind: "message", Parts: parts}
}

// NewTask returns a completed task answering in contextID. A new context
// is started when contextID is empty.
func NewTask(parts []Part, contextID string) Task {
	if strings.TrimSpace(contextID) == "" {
		contextID = uuid.NewString()
	}
	return Task{
		Kind:      "task",
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status: TaskStatus{
			State: StateCompleted,
			Message: &Message{
				Kind:      "message",
				Role:      roleAgent,
				MessageID: uuid.NewString(),
				ContextID: contextID,
				Parts:     parts,
			},
		},
	}
}

// StreamEvents converts parts into message_part events.
func StreamEvents(parts []Part) []StreamEvent {
	events := make([]StreamEvent, 0, len(parts))
	for _, part := range parts {
		events = append(events, StreamEvent{Kind: "message_part", Part: part})
	}
	return events
}

// ExtractUserText finds the user's text in an inbound payload. It accepts a
// plain "message" string, a "message" object with parts, or JSON-RPC
// "params.message" parts. A data part carrying a userAction is returned as
// its JSON encoding.
func ExtractUserText(payload map[string]any) (string, error) {
	switch direct := payload["message"].(type) {
	case string:
		if strings.TrimSpace(direct) != "" {
			return direct, nil
		}
	case map[string]any:
		if text, ok := textFromParts(direct["parts"]); ok {
			return text, nil
		}
	}

	if params, ok := payload["params"].(map[string]any); ok {
		if message, ok := params["message"].(map[string]any); ok {
			if text, ok := textFromParts(message["parts"]); ok {
				return text, nil
			}
		}
	}
	return "", xerrors.New(xerrors.CodeInvalidArgument, "No text message found in A2A payload")
}

// ContextID returns params.message.contextId when present.
func ContextID(payload map[string]any) string {
	params, _ := payload["params"].(map[string]any)
	message, _ := params["message"].(map[string]any)
	id, _ := message["contextId"].(string)
	return id
}

func textFromParts(raw any) (string, bool) {
	parts, _ := raw.([]any)
	for _, item := range parts {
		part, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch part["kind"] {
		case KindText:
			if text, ok := part["text"].(string); ok && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text), true
			}
		case KindData:
			data, ok := part["data"].(map[string]any)
			if !ok {
				continue
			}
			if _, ok := data["userAction"].(map[string]any); !ok {
				continue
			}
			encoded, err := json.Marshal(data)
			if err == nil {
				return string(encoded), true
			}
		}
	}
	return "", false
}
