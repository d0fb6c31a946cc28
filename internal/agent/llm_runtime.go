package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AIBank-Agent/internal/banking"
	xerrors "AIBank-Agent/internal/errors"
	"AIBank-Agent/internal/llm"
	"AIBank-Agent/pkg/logger"
)

const (
	defaultMaxToolRounds = 5
	defaultResponseText  = "Here is your banking update."
)

const systemPrompt = `You are a banking assistant for mock data.
Always use the available tools to fetch account data before answering.
Return ONLY a strict JSON object with keys:
- text: short user-facing text
- template_name: one of ["account_overview","account_detail","transaction_list","mortgage_summary","credit_card_statement","savings_summary"]
- data: object payload matching the template bindings
Do not include markdown fences.`

// LLMRuntime lets a chat model answer with the banking tools at hand.
type LLMRuntime struct {
	client    llm.Client
	gateway   banking.Gateway
	maxRounds int
	timeout   time.Duration
	logger    *slog.Logger
}

// LLMOption configures an LLMRuntime.
type LLMOption func(*LLMRuntime)

// WithMaxToolRounds bounds the number of tool-calling turns.
func WithMaxToolRounds(n int) LLMOption {
	return func(r *LLMRuntime) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

// WithLLMTimeout sets a deadline for the whole conversation.
func WithLLMTimeout(timeout time.Duration) LLMOption {
	return func(r *LLMRuntime) {
		if timeout < 0 {
			timeout = 0
		}
		r.timeout = timeout
	}
}

// WithLLMLogger overrides the component logger.
func WithLLMLogger(l *slog.Logger) LLMOption {
	return func(r *LLMRuntime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewLLMRuntime creates an LLM-backed runtime.
func NewLLMRuntime(client llm.Client, gw banking.Gateway, opts ...LLMOption) *LLMRuntime {
	rt := &LLMRuntime{
		client:    client,
		gateway:   gw,
		maxRounds: defaultMaxToolRounds,
		logger:    logger.Named("agent.llm"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rt)
		}
	}
	return rt
}

// Run drives the tool loop until the model returns its final JSON answer.
func (r *LLMRuntime) Run(ctx context.Context, message string) (*Response, error) {
	if r.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "llm client is not configured")
	}
	if r.gateway == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "banking gateway is not configured")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tools := make([]llm.Tool, 0, 5)
	for _, spec := range banking.Tools() {
		tools = append(tools, llm.Tool{Name: spec.Name, Description: spec.Description, Parameters: spec.InputSchema})
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: message},
	}

	for round := 0; round <= r.maxRounds; round++ {
		resp, err := r.client.Chat(ctx, llm.ChatRequest{Messages: messages, Tools: tools, JSONOutput: true})
		if err != nil {
			if stdErrors.Is(err, context.DeadlineExceeded) {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "llm request timed out")
			}
			return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "llm request failed")
		}
		if len(resp.ToolCalls) == 0 {
			return parseFinal(resp.Content)
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    r.callTool(ctx, call),
			})
		}
	}
	return nil, xerrors.New(xerrors.CodeExecutorFailure,
		fmt.Sprintf("llm did not answer within %d tool rounds", r.maxRounds))
}

// callTool runs one tool call. Failures are returned to the model as text.
func (r *LLMRuntime) callTool(ctx context.Context, call llm.ToolCall) string {
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "Error: invalid arguments: " + err.Error()
		}
	}
	result, err := banking.Call(ctx, r.gateway, call.Name, args)
	if err != nil {
		r.logger.Warn("tool call failed", slog.String("tool", call.Name), slog.Any("error", err))
		msg := err.Error()
		if coded, ok := xerrors.From(err); ok {
			msg = coded.Message()
		}
		return "Error: " + msg
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return "Error: " + err.Error()
	}
	r.logger.Debug("tool call", slog.String("tool", call.Name))
	return string(encoded)
}

// parseFinal validates the model's final answer.
func parseFinal(content string) (*Response, error) {
	content = stripFences(content)
	var payload struct {
		Text         any             `json:"text"`
		TemplateName string          `json:"template_name"`
		Data         json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "llm returned invalid JSON")
	}

	name, ok := NormalizeTemplate(payload.TemplateName)
	if !ok {
		return nil, xerrors.New(xerrors.CodeExecutorFailure, "llm returned unsupported template: "+payload.TemplateName)
	}

	var data map[string]any
	if err := json.Unmarshal(payload.Data, &data); err != nil || data == nil {
		return nil, xerrors.New(xerrors.CodeExecutorFailure, "llm data must be an object")
	}

	text := ""
	if payload.Text != nil {
		text = strings.TrimSpace(fmt.Sprint(payload.Text))
	}
	if text == "" {
		text = defaultResponseText
	}
	return &Response{Text: text, TemplateName: name, Data: data}, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
