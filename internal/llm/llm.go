package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a chat conversation. Assistant turns may request
// tool calls; tool turns answer one call by ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a function invocation requested by the model. Arguments is the
// raw JSON object produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is a single completion request.
type ChatRequest struct {
	Messages []Message
	Tools    []Tool
	// JSONOutput asks the provider for a JSON object response.
	JSONOutput bool
}

// ChatResponse is the model's next turn.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Client is implemented by every model provider.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
