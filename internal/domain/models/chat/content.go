package chat

// Citation is one displayable reference: a web page, a document fragment,
// or a graph statement. Index is the 1-based position the sanitizer's
// inline markers resolve against.
type Citation struct {
	Index   int    `json:"index,omitempty"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	URL     string `json:"url,omitempty"`
}

// CitationGroup groups network search results under the query that
// produced them.
type CitationGroup struct {
	Query string     `json:"query"`
	Items []Citation `json:"items"`
}

// TurnContent is the normalized, renderable payload of an agent turn.
// Steps are append-only within a turn; only the last step's fields mutate
// as the stream advances. The scalar stats are meaningful only once the
// turn stopped generating.
type TurnContent struct {
	Citations      []Citation      `json:"citations,omitempty"`
	CitationGroups []CitationGroup `json:"citation_groups,omitempty"`
	Steps          []ProgressStep  `json:"steps,omitempty"`
	RelatedQueries []string        `json:"related_queries,omitempty"`

	TotalElapsedSeconds float64 `json:"total_elapsed_seconds,omitempty"`
	TotalTokens         int     `json:"total_tokens,omitempty"`
	FirstTokenLatencyMs int     `json:"first_token_latency_ms,omitempty"`
}

// Clone returns a deep copy. The reducer hands cloned content to
// subscribers so concurrent readers never observe in-place mutation.
func (c *TurnContent) Clone() *TurnContent {
	if c == nil {
		return nil
	}
	out := *c
	out.Citations = append([]Citation(nil), c.Citations...)
	out.RelatedQueries = append([]string(nil), c.RelatedQueries...)
	if c.CitationGroups != nil {
		out.CitationGroups = make([]CitationGroup, len(c.CitationGroups))
		for i, g := range c.CitationGroups {
			out.CitationGroups[i] = CitationGroup{
				Query: g.Query,
				Items: append([]Citation(nil), g.Items...),
			}
		}
	}
	if c.Steps != nil {
		out.Steps = make([]ProgressStep, len(c.Steps))
		for i, s := range c.Steps {
			out.Steps[i] = *cloneStep(&s)
		}
	}
	return &out
}

func cloneStep(s *ProgressStep) *ProgressStep {
	out := *s
	if s.SQL != nil {
		sql := *s.SQL
		sql.Columns = append([]string(nil), s.SQL.Columns...)
		sql.Rows = cloneRows(s.SQL.Rows)
		out.SQL = &sql
	}
	if s.Chart != nil {
		ch := *s.Chart
		ch.Columns = append([]string(nil), s.Chart.Columns...)
		ch.Rows = cloneRows(s.Chart.Rows)
		out.Chart = &ch
	}
	if s.LLMAnswer != nil {
		v := *s.LLMAnswer
		out.LLMAnswer = &v
	}
	if s.SandboxCode != nil {
		v := *s.SandboxCode
		out.SandboxCode = &v
	}
	if s.GraphQuery != nil {
		v := *s.GraphQuery
		out.GraphQuery = &v
	}
	if s.DocumentQA != nil {
		v := *s.DocumentQA
		v.Fragments = append([]Citation(nil), s.DocumentQA.Fragments...)
		out.DocumentQA = &v
	}
	if s.NetworkSearch != nil {
		v := *s.NetworkSearch
		v.Results = append([]Citation(nil), s.NetworkSearch.Results...)
		out.NetworkSearch = &v
	}
	if s.Metric != nil {
		v := *s.Metric
		out.Metric = &v
	}
	if s.Generic != nil {
		v := *s.Generic
		out.Generic = &v
	}
	return &out
}

func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
