package classifier

import (
	"testing"

	"github.com/tidwall/gjson"

	"chatflow/internal/domain/models/chat"
)

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		wantKind string
	}{
		{"text2sql", chat.StepKindSQL},
		{"TEXT2SQL", chat.StepKindSQL},
		{"  Web_Search ", chat.StepKindNetworkSearch},
		{"llm_answer", chat.StepKindLLMAnswer},
	}

	for _, tt := range tests {
		kind, parse, ok := r.Lookup(tt.name)
		if !ok {
			t.Errorf("Lookup(%q) not found", tt.name)
			continue
		}
		if kind != tt.wantKind {
			t.Errorf("Lookup(%q) kind = %q, want %q", tt.name, kind, tt.wantKind)
		}
		if parse == nil {
			t.Errorf("Lookup(%q) returned nil parser", tt.name)
		}
	}

	if _, _, ok := r.Lookup("no_such_tool"); ok {
		t.Error("Lookup of unregistered name should report not found")
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register("mytool", chat.StepKindGenericTool, parseGeneric)
	r.Register("mytool", chat.StepKindMetric, parseMetric)

	kind, _, ok := r.Lookup("mytool")
	if !ok || kind != chat.StepKindMetric {
		t.Errorf("re-registration not applied: kind=%q ok=%v", kind, ok)
	}
}

func TestRegistrySuppress(t *testing.T) {
	r := DefaultRegistry()

	for _, name := range []string{"memory_update", "context_compress", "session_meta", "Memory_Update"} {
		if !r.Suppressed(name) {
			t.Errorf("Suppressed(%q) = false, want true", name)
		}
	}
	if r.Suppressed("web_search") {
		t.Error("web_search must not be suppressed by default")
	}

	r.Suppress("extra_tool")
	if !r.Suppressed("extra_tool") {
		t.Error("added suppression not applied")
	}
}

func TestParseFuncTolerateMissingResult(t *testing.T) {
	// An in-progress invocation has arguments but no result yet; parsers
	// must fill what exists and leave the rest zero.
	entry := gjson.Parse(`{"tool":"text2sql","arguments":{"query":"SELECT 1"}}`)
	var step chat.ProgressStep
	parseSQL(entry, &step)

	if step.SQL == nil {
		t.Fatal("SQL payload is nil")
	}
	if step.SQL.Query != "SELECT 1" {
		t.Errorf("query = %q", step.SQL.Query)
	}
	if step.SQL.Columns != nil || step.SQL.Rows != nil {
		t.Errorf("absent result must leave columns/rows nil: %+v", step.SQL)
	}
}
