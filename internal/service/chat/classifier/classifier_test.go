package classifier

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"chatflow/internal/domain/models/chat"
)

func testClassifier() *Classifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(DefaultRegistry(), logger)
}

func msgWithContent(content string) *chat.SnapshotMessage {
	return &chat.SnapshotMessage{Content: json.RawMessage(content)}
}

func TestClassifyNilAndEmpty(t *testing.T) {
	c := testClassifier()

	content, err := c.Classify(nil)
	if err != nil {
		t.Fatalf("Classify(nil) returned error: %v", err)
	}
	if len(content.Steps) != 0 || len(content.Citations) != 0 {
		t.Errorf("Classify(nil) produced non-empty content: %+v", content)
	}

	content, err = c.Classify(&chat.SnapshotMessage{})
	if err != nil {
		t.Fatalf("Classify(empty) returned error: %v", err)
	}
	if len(content.Steps) != 0 {
		t.Errorf("Classify(empty) produced steps: %+v", content.Steps)
	}
}

func TestClassifyInvalidContent(t *testing.T) {
	c := testClassifier()

	_, err := c.Classify(msgWithContent(`{not json`))
	if err == nil {
		t.Fatal("expected error for invalid content JSON, got nil")
	}
}

func TestClassifyToolDispatch(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantKind string
		check    func(t *testing.T, step chat.ProgressStep)
	}{
		{
			name: "text2sql",
			content: `{"progress":[{"id":"s1","tool":"text2sql","title":"Query revenue","status":"completed",
				"arguments":{"query":"SELECT region, SUM(amount) FROM sales GROUP BY region"},
				"result":{"columns":["region","total"],"rows":[["emea","120"],["apac","98"]]}}]}`,
			wantKind: chat.StepKindSQL,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.SQL == nil {
					t.Fatal("SQL payload is nil")
				}
				if step.SQL.Query != "SELECT region, SUM(amount) FROM sales GROUP BY region" {
					t.Errorf("query = %q", step.SQL.Query)
				}
				if len(step.SQL.Columns) != 2 || step.SQL.Columns[0] != "region" {
					t.Errorf("columns = %v", step.SQL.Columns)
				}
				if len(step.SQL.Rows) != 2 || step.SQL.Rows[1][1] != "98" {
					t.Errorf("rows = %v", step.SQL.Rows)
				}
			},
		},
		{
			name: "llm_answer rewrites citations",
			content: `{"progress":[{"id":"s1","tool":"llm_answer","title":"Answer","status":"processing",
				"result":{"text":"growth was strong [2] overall"}}]}`,
			wantKind: chat.StepKindLLMAnswer,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.LLMAnswer == nil {
					t.Fatal("LLMAnswer payload is nil")
				}
				want := "growth was strong {{cite:2}} overall"
				if step.LLMAnswer.Text != want {
					t.Errorf("text = %q, want %q", step.LLMAnswer.Text, want)
				}
			},
		},
		{
			name: "chart",
			content: `{"progress":[{"id":"s1","tool":"chart","title":"Bar chart","status":"completed",
				"result":{"chart_spec":{"type":"bar"},"columns":["x","y"],"rows":[["a","1"]]}}]}`,
			wantKind: chat.StepKindChart,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.Chart == nil {
					t.Fatal("Chart payload is nil")
				}
				if step.Chart.ChartSpec == "" {
					t.Error("chart spec is empty")
				}
			},
		},
		{
			name: "sandbox",
			content: `{"progress":[{"id":"s1","tool":"sandbox","title":"Run code","status":"completed",
				"arguments":{"language":"python","code":"print(1)"},"result":{"output":"1\n"}}]}`,
			wantKind: chat.StepKindSandboxCode,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.SandboxCode == nil {
					t.Fatal("SandboxCode payload is nil")
				}
				if step.SandboxCode.Language != "python" || step.SandboxCode.Output != "1\n" {
					t.Errorf("payload = %+v", step.SandboxCode)
				}
			},
		},
		{
			name: "graph_qa",
			content: `{"progress":[{"id":"s1","tool":"graph_qa","title":"Graph","status":"completed",
				"arguments":{"query":"MATCH (n) RETURN n"},"result":{"answer":"42 nodes"}}]}`,
			wantKind: chat.StepKindGraphQuery,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.GraphQuery == nil || step.GraphQuery.Result != "42 nodes" {
					t.Errorf("payload = %+v", step.GraphQuery)
				}
			},
		},
		{
			name: "document_qa",
			content: `{"progress":[{"id":"s1","tool":"document_qa","title":"Docs","status":"completed",
				"arguments":{"question":"what changed"},
				"result":{"fragments":[{"title":"Q3 report","snippet":"margins improved","url":"doc://q3"}]}}]}`,
			wantKind: chat.StepKindDocumentQA,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.DocumentQA == nil || len(step.DocumentQA.Fragments) != 1 {
					t.Fatalf("payload = %+v", step.DocumentQA)
				}
				if step.DocumentQA.Fragments[0].Title != "Q3 report" {
					t.Errorf("fragment = %+v", step.DocumentQA.Fragments[0])
				}
			},
		},
		{
			name: "web_search",
			content: `{"progress":[{"id":"s1","tool":"web_search","title":"Search","status":"completed",
				"arguments":{"query":"golang generics"},
				"result":{"results":[{"title":"Go blog","snippet":"generics landed","url":"https://go.dev"}]}}]}`,
			wantKind: chat.StepKindNetworkSearch,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.NetworkSearch == nil || step.NetworkSearch.Query != "golang generics" {
					t.Errorf("payload = %+v", step.NetworkSearch)
				}
			},
		},
		{
			name: "metric",
			content: `{"progress":[{"id":"s1","tool":"metric","title":"DAU","status":"completed",
				"arguments":{"name":"dau"},"result":{"value":"10234","unit":"users"}}]}`,
			wantKind: chat.StepKindMetric,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.Metric == nil || step.Metric.Value != "10234" {
					t.Errorf("payload = %+v", step.Metric)
				}
			},
		},
		{
			name: "unknown tool falls back to generic",
			content: `{"progress":[{"id":"s1","tool":"future_tool","title":"New","status":"processing",
				"arguments":{"x":1}}]}`,
			wantKind: chat.StepKindGenericTool,
			check: func(t *testing.T, step chat.ProgressStep) {
				if step.Generic == nil {
					t.Fatal("Generic payload is nil")
				}
				if step.Generic.ToolName != "future_tool" {
					t.Errorf("tool name = %q", step.Generic.ToolName)
				}
				if step.Generic.RawJSON == "" {
					t.Error("raw invocation not preserved")
				}
			},
		},
	}

	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := c.Classify(msgWithContent(tt.content))
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if len(content.Steps) != 1 {
				t.Fatalf("got %d steps, want 1", len(content.Steps))
			}
			step := content.Steps[0]
			if step.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", step.Kind, tt.wantKind)
			}
			tt.check(t, step)
		})
	}
}

func TestClassifySuppressedTools(t *testing.T) {
	c := testClassifier()

	content, err := c.Classify(msgWithContent(`{"progress":[
		{"id":"s1","tool":"memory_update","status":"completed"},
		{"id":"s2","tool":"llm_answer","status":"processing","result":{"text":"hi"}},
		{"id":"s3","tool":"context_compress","status":"completed"}]}`))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if len(content.Steps) != 1 {
		t.Fatalf("got %d steps, want 1 (suppressed tools must be dropped)", len(content.Steps))
	}
	if content.Steps[0].ID != "s2" {
		t.Errorf("surviving step = %q, want s2", content.Steps[0].ID)
	}
}

func TestClassifyStepDefaults(t *testing.T) {
	c := testClassifier()

	content, err := c.Classify(msgWithContent(`{"progress":[{"tool":"web_search","status":"processing"}]}`))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	step := content.Steps[0]
	if step.ID != "step-0" {
		t.Errorf("missing id not defaulted by index: %q", step.ID)
	}
	if step.Title != "web_search" {
		t.Errorf("missing title not defaulted to tool name: %q", step.Title)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"completed", chat.StepStatusCompleted},
		{"finish", chat.StepStatusCompleted},
		{"success", chat.StepStatusCompleted},
		{"done", chat.StepStatusCompleted},
		{"failed", chat.StepStatusFailed},
		{"error", chat.StepStatusFailed},
		{"processing", chat.StepStatusProcessing},
		{"running", chat.StepStatusProcessing},
		{"", chat.StepStatusProcessing},
	}

	for _, tt := range tests {
		if got := normalizeStatus(tt.in); got != tt.want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifyCitations(t *testing.T) {
	c := testClassifier()

	content, err := c.Classify(msgWithContent(`{"variables":{
		"search_results":[
			{"query":"q1","results":[
				{"title":"a","snippet":"sa","url":"u1"},
				{"title":"b","snippet":"sb","url":"u2"}]},
			{"query":"q2","results":[{"title":"c","snippet":"sc","url":"u3"}]}],
		"doc_citations":[{"title":"d","snippet":"sd","url":"u4"}]}}`))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	if len(content.Citations) != 4 {
		t.Fatalf("got %d citations, want 4", len(content.Citations))
	}
	for i, cit := range content.Citations {
		if cit.Index != i+1 {
			t.Errorf("citation %d has index %d, want %d (1-based ordering)", i, cit.Index, i+1)
		}
	}
	if content.Citations[3].Title != "d" {
		t.Errorf("doc citation not appended last: %+v", content.Citations[3])
	}

	if len(content.CitationGroups) != 2 {
		t.Fatalf("got %d groups, want 2", len(content.CitationGroups))
	}
	if content.CitationGroups[0].Query != "q1" || len(content.CitationGroups[0].Items) != 2 {
		t.Errorf("group 0 = %+v", content.CitationGroups[0])
	}
}

func TestClassifyExtMetadata(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name string
		ext  string
	}{
		{
			name: "object form",
			ext:  `{"total_time":3.5,"total_tokens":820,"ttft":410,"related_queries":["next q"]}`,
		},
		{
			name: "string-wrapped form",
			ext:  `"{\"total_time\":3.5,\"total_tokens\":820,\"ttft\":410,\"related_queries\":[\"next q\"]}"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &chat.SnapshotMessage{Ext: json.RawMessage(tt.ext)}
			content, err := c.Classify(msg)
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if content.TotalElapsedSeconds != 3.5 {
				t.Errorf("elapsed = %v, want 3.5", content.TotalElapsedSeconds)
			}
			if content.TotalTokens != 820 {
				t.Errorf("tokens = %d, want 820", content.TotalTokens)
			}
			if content.FirstTokenLatencyMs != 410 {
				t.Errorf("ttft = %d, want 410", content.FirstTokenLatencyMs)
			}
			if len(content.RelatedQueries) != 1 || content.RelatedQueries[0] != "next q" {
				t.Errorf("related queries = %v", content.RelatedQueries)
			}
		})
	}
}

func TestClassifyMalformedExtDegrades(t *testing.T) {
	c := testClassifier()

	msg := &chat.SnapshotMessage{Ext: json.RawMessage(`{broken`)}
	content, err := c.Classify(msg)
	if err != nil {
		t.Fatalf("malformed ext must not fail the turn: %v", err)
	}
	if content.TotalTokens != 0 || len(content.RelatedQueries) != 0 {
		t.Errorf("malformed ext should degrade to defaults: %+v", content)
	}
}

// Classification is a pure projection of the snapshot document: calling it
// twice on the same message must yield equal output.
func TestClassifyIdempotent(t *testing.T) {
	c := testClassifier()
	msg := msgWithContent(`{"progress":[
		{"id":"s1","tool":"text2sql","title":"q","status":"completed",
			"arguments":{"query":"SELECT 1"},"result":{"columns":["c"],"rows":[["1"]]}},
		{"id":"s2","tool":"llm_answer","status":"processing","result":{"text":"partial [1]"}}],
		"variables":{"search_results":[{"query":"q","results":[{"title":"t","url":"u"}]}]}}`)

	first, err := c.Classify(msg)
	if err != nil {
		t.Fatalf("first Classify: %v", err)
	}
	second, err := c.Classify(msg)
	if err != nil {
		t.Fatalf("second Classify: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("classification not idempotent:\nfirst  %s\nsecond %s", a, b)
	}
}
