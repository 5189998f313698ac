package classifier

import (
	"sync"

	"github.com/tidwall/gjson"

	"chatflow/internal/domain/models/chat"
)

// ParseFunc fills the kind-specific payload of a step from one raw
// tool-invocation snapshot. Parsers must tolerate partially-populated
// entries: an in-progress call may have no result yet, and absence means
// "not yet known", not "empty".
type ParseFunc func(entry gjson.Result, step *chat.ProgressStep)

type registration struct {
	kind  string
	parse ParseFunc
}

// Registry maps tool names to step parsers. Unregistered names fall
// through to the generic variant; suppressed names (internal bookkeeping
// tools) are excluded from the produced step sequence entirely.
// It is thread-safe and can be used concurrently.
type Registry struct {
	mu         sync.RWMutex
	parsers    map[string]registration
	suppressed map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers:    make(map[string]registration),
		suppressed: make(map[string]struct{}),
	}
}

// Register adds a parser for a tool name. If the name is already
// registered, it is replaced.
func (r *Registry) Register(name, kind string, parse ParseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[normalizeToolName(name)] = registration{kind: kind, parse: parse}
}

// Suppress marks tool names whose invocations are dropped from output.
// This is a deliberate filter for internal bookkeeping tools.
func (r *Registry) Suppress(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		r.suppressed[normalizeToolName(name)] = struct{}{}
	}
}

// Suppressed reports whether a tool name is on the suppress list.
func (r *Registry) Suppressed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.suppressed[normalizeToolName(name)]
	return ok
}

// Lookup returns the registration for a tool name.
// The second return is false for unregistered names.
func (r *Registry) Lookup(name string) (string, ParseFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.parsers[normalizeToolName(name)]
	if !ok {
		return "", nil, false
	}
	return reg.kind, reg.parse, true
}

// DefaultRegistry returns a registry pre-loaded with the known backend
// tool names and the standard suppress list.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("llm_answer", chat.StepKindLLMAnswer, parseLLMAnswer)
	r.Register("answer", chat.StepKindLLMAnswer, parseLLMAnswer)
	r.Register("text2sql", chat.StepKindSQL, parseSQL)
	r.Register("sql_query", chat.StepKindSQL, parseSQL)
	r.Register("chart", chat.StepKindChart, parseChart)
	r.Register("visualization", chat.StepKindChart, parseChart)
	r.Register("sandbox", chat.StepKindSandboxCode, parseSandboxCode)
	r.Register("code_interpreter", chat.StepKindSandboxCode, parseSandboxCode)
	r.Register("graph_qa", chat.StepKindGraphQuery, parseGraphQuery)
	r.Register("graph_query", chat.StepKindGraphQuery, parseGraphQuery)
	r.Register("document_qa", chat.StepKindDocumentQA, parseDocumentQA)
	r.Register("doc_qa", chat.StepKindDocumentQA, parseDocumentQA)
	r.Register("web_search", chat.StepKindNetworkSearch, parseNetworkSearch)
	r.Register("network_search", chat.StepKindNetworkSearch, parseNetworkSearch)
	r.Register("metric", chat.StepKindMetric, parseMetric)
	r.Register("metric_query", chat.StepKindMetric, parseMetric)

	// Internal bookkeeping tools never surface as progress steps.
	r.Suppress("memory_update", "context_compress", "session_meta")

	return r
}
