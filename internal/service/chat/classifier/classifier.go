// Package classifier turns raw turn snapshots into the normalized,
// renderable TurnContent model. Classification is pure and idempotent:
// the same snapshot always produces the same content, and snapshots are
// full restatements, so every call rebuilds the content from scratch.
package classifier

import (
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"chatflow/internal/domain/models/chat"
)

// Classifier dispatches tool-invocation snapshots through a parser
// registry and projects citation variables into ordered reference lists.
type Classifier struct {
	registry *Registry
	logger   *slog.Logger
}

// New creates a classifier over the given registry.
func New(registry *Registry, logger *slog.Logger) *Classifier {
	return &Classifier{registry: registry, logger: logger}
}

// Classify builds TurnContent from one snapshot message.
//
// Malformed fields inside an otherwise healthy snapshot degrade to
// defaults. A content document that is present but not valid JSON is the
// one top-level failure: it is returned as an error for the reducer to
// surface as a terminal turn error.
func (c *Classifier) Classify(msg *chat.SnapshotMessage) (*chat.TurnContent, error) {
	content := &chat.TurnContent{}
	if msg == nil {
		return content, nil
	}

	doc := msg.ContentDoc()
	if len(msg.Content) > 0 && !doc.Exists() {
		return nil, fmt.Errorf("snapshot content is not valid JSON")
	}

	c.classifySteps(doc, content)
	c.classifyCitations(doc.Get("variables"), content)

	ext := msg.ParseExt()
	content.RelatedQueries = ext.RelatedQueries
	content.TotalElapsedSeconds = ext.TotalTime
	content.TotalTokens = ext.TotalTokens
	content.FirstTokenLatencyMs = ext.TTFT

	return content, nil
}

func (c *Classifier) classifySteps(doc gjson.Result, content *chat.TurnContent) {
	progress := doc.Get("progress")
	if !progress.IsArray() {
		return
	}
	for i, entry := range progress.Array() {
		tool := entry.Get("tool").String()
		if c.registry.Suppressed(tool) {
			continue
		}

		step := chat.ProgressStep{
			ID:             entry.Get("id").String(),
			Title:          entry.Get("title").String(),
			Status:         normalizeStatus(entry.Get("status").String()),
			ElapsedSeconds: entry.Get("elapsed").Float(),
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i)
		}
		if step.Title == "" {
			step.Title = tool
		}
		if args := entry.Get("arguments"); args.Exists() {
			step.RawToolArgs = args.Raw
		}

		if kind, parse, ok := c.registry.Lookup(tool); ok {
			step.Kind = kind
			parse(entry, &step)
		} else {
			step.Kind = chat.StepKindGenericTool
			parseGeneric(entry, &step)
			c.logger.Debug("unregistered tool classified as generic", "tool", tool)
		}

		content.Steps = append(content.Steps, step)
	}
}

// classifyCitations projects the citation variables: network search
// results arrive grouped under their originating query, document
// citations as a flat list. The flat Citations slice is the ordered set
// inline markers index into, 1-based.
func (c *Classifier) classifyCitations(vars gjson.Result, content *chat.TurnContent) {
	if !vars.Exists() {
		return
	}

	index := 0
	for _, group := range vars.Get("search_results").Array() {
		g := chat.CitationGroup{Query: group.Get("query").String()}
		for _, item := range citationList(group.Get("results")) {
			index++
			item.Index = index
			g.Items = append(g.Items, item)
			content.Citations = append(content.Citations, item)
		}
		content.CitationGroups = append(content.CitationGroups, g)
	}

	for _, item := range citationList(vars.Get("doc_citations")) {
		index++
		item.Index = index
		content.Citations = append(content.Citations, item)
	}
}

// normalizeStatus folds backend status spellings into the three canonical
// step statuses.
func normalizeStatus(status string) string {
	switch status {
	case "completed", "complete", "finish", "finished", "success", "done":
		return chat.StepStatusCompleted
	case "failed", "error":
		return chat.StepStatusFailed
	default:
		return chat.StepStatusProcessing
	}
}
