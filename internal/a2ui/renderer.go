package a2ui

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	xerrors "AIBank-Agent/internal/errors"
)

//go:embed templates/*.json
var embedded embed.FS

// Message is one A2UI protocol message.
type Message = map[string]any

var requiredKinds = []string{"surfaceUpdate", "dataModelUpdate", "beginRendering"}

// Library holds validated templates keyed by name without extension.
type Library struct {
	templates map[string][]byte
}

// Load reads and validates the embedded templates.
func Load() (*Library, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// LoadFS reads every *.json file of fsys. Any template that fails the schema
// or lacks one of the three message kinds aborts loading.
func LoadFS(fsys fs.FS) (*Library, error) {
	names, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "no a2ui templates found")
	}

	lib := &Library{templates: make(map[string][]byte, len(names))}
	for _, file := range names {
		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", file, err)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "parse template "+file)
		}
		if err := Validate(decoded); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "validate template "+file)
		}
		if err := requireKinds(decoded.([]any)); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "validate template "+file)
		}
		lib.templates[strings.TrimSuffix(path.Base(file), ".json")] = raw
	}
	return lib, nil
}

func requireKinds(messages []any) error {
	seen := make(map[string]bool, len(requiredKinds))
	for _, msg := range messages {
		for key := range msg.(map[string]any) {
			seen[key] = true
		}
	}
	for _, kind := range requiredKinds {
		if !seen[kind] {
			return fmt.Errorf("template has no %s message", kind)
		}
	}
	return nil
}

// Names lists the loaded template names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a template exists. A ".json" suffix is accepted.
func (l *Library) Has(name string) bool {
	_, ok := l.templates[strings.TrimSuffix(name, ".json")]
	return ok
}

// Template returns a fresh copy of the named template.
func (l *Library) Template(name string) ([]Message, error) {
	raw, ok := l.templates[strings.TrimSuffix(name, ".json")]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "unknown template "+name)
	}
	var messages []Message
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", name, err)
	}
	return messages, nil
}

// Render copies the named template and appends data to the contents of its
// dataModelUpdate messages as typed A2UI entries.
func (l *Library) Render(name string, data map[string]any) ([]Message, error) {
	messages, err := l.Template(name)
	if err != nil {
		return nil, err
	}
	entries, err := Contents(data)
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		update, ok := msg["dataModelUpdate"].(map[string]any)
		if !ok {
			continue
		}
		existing, _ := update["contents"].([]any)
		update["contents"] = append(existing, entries...)
	}
	return messages, nil
}

// Contents converts a data payload into A2UI data model entries. Keys are
// sorted; lists become maps keyed by index and keep their order.
func Contents(data map[string]any) ([]any, error) {
	if len(data) == 0 {
		return []any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode template data: %w", err)
	}
	var generic map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode template data: %w", err)
	}
	return entriesOf(generic), nil
}

func entriesOf(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	if indexed(keys) {
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.Atoi(keys[i])
			b, _ := strconv.Atoi(keys[j])
			return a < b
		})
	} else {
		sort.Strings(keys)
	}

	out := make([]any, 0, len(keys))
	for _, key := range keys {
		if entry, ok := entryOf(key, m[key]); ok {
			out = append(out, entry)
		}
	}
	return out
}

// indexed reports whether every key is a list index ("0", "1", ...).
func indexed(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, key := range keys {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || strconv.Itoa(n) != key {
			return false
		}
	}
	return true
}

func entryOf(key string, value any) (map[string]any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		return map[string]any{"key": key, "valueString": v}, true
	case json.Number:
		return map[string]any{"key": key, "valueNumber": v}, true
	case bool:
		return map[string]any{"key": key, "valueBoolean": v}, true
	case map[string]any:
		return map[string]any{"key": key, "valueMap": entriesOf(v)}, true
	case []any:
		byIndex := make(map[string]any, len(v))
		for i, item := range v {
			byIndex[strconv.Itoa(i)] = item
		}
		return map[string]any{"key": key, "valueMap": entriesOf(byIndex)}, true
	default:
		return map[string]any{"key": key, "valueString": fmt.Sprint(v)}, true
	}
}
