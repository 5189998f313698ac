package classifier

import (
	"strings"

	"github.com/tidwall/gjson"

	"chatflow/internal/domain/models/chat"
)

// normalizeToolName lower-cases and trims a wire tool name so registry
// lookups are insensitive to backend casing quirks.
func normalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func parseLLMAnswer(entry gjson.Result, step *chat.ProgressStep) {
	p := &chat.LLMAnswerPayload{}
	if text := entry.Get("result.text"); text.Exists() {
		p.Text = SanitizeText(text.String())
	} else if text := entry.Get("text"); text.Exists() {
		p.Text = SanitizeText(text.String())
	}
	p.Thinking = entry.Get("result.thinking").String()
	step.LLMAnswer = p
}

func parseSQL(entry gjson.Result, step *chat.ProgressStep) {
	p := &chat.SQLPayload{
		Query: firstString(entry, "arguments.query", "result.sql"),
	}
	p.Columns = stringList(entry.Get("result.columns"))
	p.Rows = rowList(entry.Get("result.rows"))
	step.SQL = p
}

func parseChart(entry gjson.Result, step *chat.ProgressStep) {
	p := &chat.ChartPayload{}
	if spec := entry.Get("result.chart_spec"); spec.Exists() {
		if spec.IsObject() {
			p.ChartSpec = spec.Raw
		} else {
			p.ChartSpec = spec.String()
		}
	}
	p.Columns = stringList(entry.Get("result.columns"))
	p.Rows = rowList(entry.Get("result.rows"))
	step.Chart = p
}

func parseSandboxCode(entry gjson.Result, step *chat.ProgressStep) {
	step.SandboxCode = &chat.SandboxCodePayload{
		Language: entry.Get("arguments.language").String(),
		Code:     firstString(entry, "arguments.code", "result.code"),
		Output:   entry.Get("result.output").String(),
	}
}

func parseGraphQuery(entry gjson.Result, step *chat.ProgressStep) {
	p := &chat.GraphQueryPayload{
		Query: firstString(entry, "arguments.query", "result.query"),
	}
	if res := entry.Get("result.answer"); res.Exists() {
		if res.IsObject() || res.IsArray() {
			p.Result = res.Raw
		} else {
			p.Result = res.String()
		}
	}
	step.GraphQuery = p
}

func parseDocumentQA(entry gjson.Result, step *chat.ProgressStep) {
	p := &chat.DocumentQAPayload{
		Question: firstString(entry, "arguments.question", "arguments.query"),
	}
	p.Fragments = citationList(entry.Get("result.fragments"))
	step.DocumentQA = p
}

func parseNetworkSearch(entry gjson.Result, step *chat.ProgressStep) {
	p := &chat.NetworkSearchPayload{
		Query: entry.Get("arguments.query").String(),
	}
	p.Results = citationList(entry.Get("result.results"))
	step.NetworkSearch = p
}

func parseMetric(entry gjson.Result, step *chat.ProgressStep) {
	step.Metric = &chat.MetricPayload{
		Name:  firstString(entry, "arguments.name", "result.name"),
		Value: entry.Get("result.value").String(),
		Unit:  entry.Get("result.unit").String(),
	}
}

// parseGeneric is the fallback for unregistered tool names: the raw
// invocation snapshot is preserved, never dropped silently.
func parseGeneric(entry gjson.Result, step *chat.ProgressStep) {
	step.Generic = &chat.GenericToolPayload{
		ToolName: entry.Get("tool").String(),
		RawJSON:  entry.Raw,
	}
}

func firstString(entry gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := entry.Get(path); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func stringList(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		out = append(out, item.String())
	}
	return out
}

func rowList(v gjson.Result) [][]string {
	if !v.IsArray() {
		return nil
	}
	var out [][]string
	for _, row := range v.Array() {
		var cells []string
		for _, cell := range row.Array() {
			cells = append(cells, cell.String())
		}
		out = append(out, cells)
	}
	return out
}

// CitationList decodes an array of {title, snippet, url} objects.
// Exported for reuse by the plan extractor, which projects the same shape
// out of the variables bag.
func CitationList(v gjson.Result) []chat.Citation {
	return citationList(v)
}

func citationList(v gjson.Result) []chat.Citation {
	if !v.IsArray() {
		return nil
	}
	var out []chat.Citation
	for _, item := range v.Array() {
		out = append(out, chat.Citation{
			Title:   item.Get("title").String(),
			Snippet: item.Get("snippet").String(),
			URL:     item.Get("url").String(),
		})
	}
	return out
}
