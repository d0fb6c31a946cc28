package intent

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Action names emitted by the rendered surfaces.
const (
	ActionBackToOverview    = "backToOverview"
	ActionSelectTransaction = "selectTransaction"
	ActionSelectAccount     = "selectAccount"
)

const actionMarker = "useraction"

// Action is a structured UI event sent back as the chat message.
type Action struct {
	Name    string
	Context Context
}

// Context is the action payload as an ordered key/value mapping. List-form
// payloads keep their order; object-form payloads are exposed in sorted key
// order.
type Context struct {
	keys   []string
	values map[string]any
}

// NewContext builds a context from alternating key/value pairs.
func NewContext(pairs ...any) Context {
	var c Context
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		c.set(key, pairs[i+1])
	}
	return c
}

func (c *Context) set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Keys returns the keys in order.
func (c Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of entries.
func (c Context) Len() int { return len(c.keys) }

// Get returns the raw value of key.
func (c Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns key rendered as a string, or "" when absent or not scalar.
func (c Context) String(key string) string {
	v, ok := c.values[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// ParseAction recognises a {"userAction": {"name", "context"}} message. The
// second result is false for anything that is not a well-formed action,
// in which case the message should be classified as free text.
func ParseAction(message string) (Action, bool) {
	if !strings.Contains(strings.ToLower(message), actionMarker) {
		return Action{}, false
	}

	var envelope struct {
		UserAction *struct {
			Name    string          `json:"name"`
			Context json.RawMessage `json:"context"`
		} `json:"userAction"`
	}
	if err := json.Unmarshal([]byte(extractObject(message)), &envelope); err != nil {
		return Action{}, false
	}
	if envelope.UserAction == nil || strings.TrimSpace(envelope.UserAction.Name) == "" {
		return Action{}, false
	}
	return Action{
		Name:    strings.TrimSpace(envelope.UserAction.Name),
		Context: parseContext(envelope.UserAction.Context),
	}, true
}

// Route maps the action onto an intent. Unknown actions without an account
// id are not routable.
func (a Action) Route() (Tag, bool) {
	switch a.Name {
	case ActionBackToOverview:
		return Overview, true
	case ActionSelectTransaction:
		return SelectTransaction, true
	}
	if a.Context.String("accountId") != "" {
		return AccountDetail, true
	}
	return "", false
}

// extractObject trims text around the outermost JSON object.
func extractObject(message string) string {
	start := strings.Index(message, "{")
	end := strings.LastIndex(message, "}")
	if start < 0 || end <= start {
		return message
	}
	return message[start : end+1]
}

func parseContext(raw json.RawMessage) Context {
	var c Context
	if len(raw) == 0 {
		return c
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return c
	}

	switch v := decoded.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			c.set(key, unwrapLiteral(v[key]))
		}
	case []any:
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			key, ok := entry["key"].(string)
			if !ok || key == "" {
				continue
			}
			c.set(key, unwrapLiteral(entry["value"]))
		}
	}
	return c
}

// unwrapLiteral accepts A2UI bound values such as {"literalString": "x"}.
func unwrapLiteral(value any) any {
	m, ok := value.(map[string]any)
	if !ok || len(m) != 1 {
		return value
	}
	for _, key := range []string{"literalString", "literalNumber", "literalBoolean"} {
		if inner, ok := m[key]; ok {
			return inner
		}
	}
	return value
}
