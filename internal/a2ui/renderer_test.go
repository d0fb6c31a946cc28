package a2ui

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"testing"
	"testing/fstest"

	"AIBank-Agent/internal/banking"
	"AIBank-Agent/internal/format"
)

var templateNames = []string{
	"account_detail",
	"account_overview",
	"credit_card_statement",
	"mortgage_summary",
	"savings_summary",
	"transaction_list",
	"transaction_location",
}

func mustLoad(t *testing.T) *Library {
	t.Helper()
	lib, err := Load()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	return lib
}

func TestLoadEmbeddedTemplates(t *testing.T) {
	lib := mustLoad(t)
	if got := lib.Names(); !reflect.DeepEqual(got, templateNames) {
		t.Fatalf("unexpected templates: %v", got)
	}
	if !lib.Has("mortgage_summary.json") || !lib.Has("mortgage_summary") {
		t.Fatalf("template lookup should accept an optional .json suffix")
	}
}

func TestEveryTemplateHasAllMessageKinds(t *testing.T) {
	lib := mustLoad(t)
	for _, name := range templateNames {
		messages, err := lib.Template(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		kinds := map[string]bool{}
		for _, msg := range messages {
			for key := range msg {
				kinds[key] = true
			}
		}
		for _, kind := range requiredKinds {
			if !kinds[kind] {
				t.Fatalf("%s is missing %s", name, kind)
			}
		}
	}
}

func TestLoadFSRejectsInvalidTemplates(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"wrong shape":    `[{"surfaceUpdate": {"surfaceId": 7, "components": []}}]`,
		"missing kind":   `[{"surfaceUpdate": {"surfaceId": "main", "components": []}}, {"beginRendering": {"surfaceId": "main", "root": "root"}}]`,
		"unknown object": `[{"somethingElse": {}}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{"broken.json": &fstest.MapFile{Data: []byte(body)}}
			if _, err := LoadFS(fsys); err == nil {
				t.Fatalf("expected load to fail")
			}
		})
	}
	if _, err := LoadFS(fstest.MapFS{}); err == nil {
		t.Fatalf("expected error for an empty template directory")
	}
}

func TestRenderMergesData(t *testing.T) {
	lib := mustLoad(t)
	messages, err := lib.Render("account_overview", map[string]any{
		"headerText": "Net Worth: £10.00",
		"accounts": map[string]any{
			"0": map[string]any{"id": "acc_1", "balanceDisplay": "£10.00"},
		},
		"count":   2,
		"visible": true,
		"missing": nil,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var contents []any
	for _, msg := range messages {
		if update, ok := msg["dataModelUpdate"].(map[string]any); ok {
			contents = update["contents"].([]any)
		}
	}
	if len(contents) != 4 {
		t.Fatalf("unexpected contents: %v", contents)
	}

	encoded, err := json.Marshal(contents)
	if err != nil {
		t.Fatalf("marshal contents: %v", err)
	}
	want := `[{"key":"accounts","valueMap":[{"key":"0","valueMap":[{"key":"balanceDisplay","valueString":"£10.00"},{"key":"id","valueString":"acc_1"}]}]},` +
		`{"key":"count","valueNumber":2},` +
		`{"key":"headerText","valueString":"Net Worth: £10.00"},` +
		`{"key":"visible","valueBoolean":true}]`
	if string(encoded) != want {
		t.Fatalf("unexpected contents:\n got %s\nwant %s", encoded, want)
	}

	var generic any
	raw, _ := json.Marshal(messages)
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal rendered: %v", err)
	}
	if err := Validate(generic); err != nil {
		t.Fatalf("rendered output should satisfy the schema: %v", err)
	}
}

func TestRenderDoesNotMutateTemplate(t *testing.T) {
	lib := mustLoad(t)
	if _, err := lib.Render("savings_summary", map[string]any{"name": "Rainy Day Saver"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	fresh, err := lib.Template("savings_summary")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	for _, msg := range fresh {
		if update, ok := msg["dataModelUpdate"].(map[string]any); ok {
			if contents := update["contents"].([]any); len(contents) != 0 {
				t.Fatalf("template should stay pristine, got %v", contents)
			}
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	lib := mustLoad(t)
	if _, err := lib.Render("loan_summary", nil); err == nil {
		t.Fatalf("expected error for an unknown template")
	}
}

func TestContentsConvertsLists(t *testing.T) {
	entries, err := Contents(map[string]any{"items": []string{"a", "b"}})
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	encoded, _ := json.Marshal(entries)
	want := `[{"key":"items","valueMap":[{"key":"0","valueString":"a"},{"key":"1","valueString":"b"}]}]`
	if string(encoded) != want {
		t.Fatalf("unexpected entries: %s", encoded)
	}
}

func TestContentsKeepsListOrderPastTen(t *testing.T) {
	txs := make([]banking.Transaction, 0, 12)
	for i := 0; i < 12; i++ {
		txs = append(txs, banking.Transaction{
			ID:     fmt.Sprintf("tx_%02d", i),
			Date:   fmt.Sprintf("2026-03-%02d", 20-i),
			Amount: "1.00",
			Type:   banking.Debit,
		})
	}
	entries, err := Contents(map[string]any{"transactions": format.Transactions(txs)})
	if err != nil {
		t.Fatalf("contents: %v", err)
	}

	list := entries[0].(map[string]any)["valueMap"].([]any)
	if len(list) != 12 {
		t.Fatalf("unexpected entries: %d", len(list))
	}
	for i, item := range list {
		entry := item.(map[string]any)
		if entry["key"] != strconv.Itoa(i) {
			t.Fatalf("position %d holds key %v", i, entry["key"])
		}
	}

	items := make([]any, 12)
	for i := range items {
		items[i] = i
	}
	entries, err = Contents(map[string]any{"items": items})
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	list = entries[0].(map[string]any)["valueMap"].([]any)
	if last := list[11].(map[string]any); last["key"] != "11" {
		t.Fatalf("unexpected last entry: %v", last)
	}
}

func TestContentsSortsNonIndexKeys(t *testing.T) {
	entries, err := Contents(map[string]any{"m": map[string]any{"10": "a", "2": "b", "x": "c"}})
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	encoded, _ := json.Marshal(entries)
	want := `[{"key":"m","valueMap":[{"key":"10","valueString":"a"},{"key":"2","valueString":"b"},{"key":"x","valueString":"c"}]}]`
	if string(encoded) != want {
		t.Fatalf("unexpected entries: %s", encoded)
	}
}
