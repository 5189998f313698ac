package chat

// Step kind constants. Each progress step carries exactly one kind-specific
// payload matching its kind.
const (
	StepKindLLMAnswer     = "llm-answer"
	StepKindSQL           = "sql"
	StepKindChart         = "chart"
	StepKindSandboxCode   = "sandbox-code"
	StepKindGraphQuery    = "graph-query"
	StepKindDocumentQA    = "document-qa"
	StepKindNetworkSearch = "network-search"
	StepKindGenericTool   = "generic-tool"
	StepKindMetric        = "metric"
)

// Step status constants
const (
	StepStatusProcessing = "processing"
	StepStatusCompleted  = "completed"
	StepStatusFailed     = "failed"
)

// ProgressStep is one entry in a turn's tool-execution timeline.
// It is a tagged union discriminated by Kind: exactly one of the payload
// pointers is non-nil, and it matches Kind.
//
// Invariant: once Status is "completed" the payload is frozen. Later
// snapshots for the same turn must never move a completed step back to
// "processing" (the reducer enforces this during merge).
type ProgressStep struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	RawToolArgs    string  `json:"raw_tool_args,omitempty"`

	LLMAnswer     *LLMAnswerPayload     `json:"llm_answer,omitempty"`
	SQL           *SQLPayload           `json:"sql,omitempty"`
	Chart         *ChartPayload         `json:"chart,omitempty"`
	SandboxCode   *SandboxCodePayload   `json:"sandbox_code,omitempty"`
	GraphQuery    *GraphQueryPayload    `json:"graph_query,omitempty"`
	DocumentQA    *DocumentQAPayload    `json:"document_qa,omitempty"`
	NetworkSearch *NetworkSearchPayload `json:"network_search,omitempty"`
	Metric        *MetricPayload        `json:"metric,omitempty"`
	Generic       *GenericToolPayload   `json:"generic,omitempty"`
}

// Completed returns true once the step reached its frozen terminal state.
func (s *ProgressStep) Completed() bool {
	return s.Status == StepStatusCompleted
}

// LLMAnswerPayload holds free-text model output, with optional reasoning text.
type LLMAnswerPayload struct {
	Text     string `json:"text"`
	Thinking string `json:"thinking,omitempty"`
}

// SQLPayload holds a generated query and its tabular result.
type SQLPayload struct {
	Query   string     `json:"query"`
	Columns []string   `json:"columns,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
}

// ChartPayload holds a chart specification plus the data it renders.
type ChartPayload struct {
	ChartSpec string     `json:"chart_spec"`
	Columns   []string   `json:"columns,omitempty"`
	Rows      [][]string `json:"rows,omitempty"`
}

// SandboxCodePayload holds code executed in the backend sandbox.
type SandboxCodePayload struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
	Output   string `json:"output,omitempty"`
}

// GraphQueryPayload holds a knowledge-graph query and its textual result.
type GraphQueryPayload struct {
	Query  string `json:"query"`
	Result string `json:"result,omitempty"`
}

// DocumentQAPayload holds document fragments retrieved for a question.
type DocumentQAPayload struct {
	Question  string     `json:"question,omitempty"`
	Fragments []Citation `json:"fragments,omitempty"`
}

// NetworkSearchPayload holds web search results for a query.
type NetworkSearchPayload struct {
	Query   string     `json:"query,omitempty"`
	Results []Citation `json:"results,omitempty"`
}

// MetricPayload holds a single looked-up metric value.
type MetricPayload struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// GenericToolPayload is the fallback for unregistered tool names.
// RawJSON preserves the full invocation snapshot so nothing is dropped
// silently.
type GenericToolPayload struct {
	ToolName string `json:"tool_name"`
	RawJSON  string `json:"raw_json"`
}
