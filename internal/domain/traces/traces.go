// Package traces groups OTLP/JSON trace documents by trace id.
package traces

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/okian/connect-extensions/internal/adapters/connect"
)

// defaultStatus is given to spans that carry no status.
var defaultStatus = map[string]any{"code": "STATUS_CODE_OK"}

// Trace is every span of one trace id, kept as per-document copies.
type Trace struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	SpansCount int                     `json:"spans_count"`
	DurationMS int64                   `json:"duration_ms"`
	StartTime  int64                   `json:"start_time"`
	Documents  []connect.TraceDocument `json:"documents"`
}

// GroupByTraceID splits docs by the traceId of their spans. Each group
// holds copies of the source documents filtered to that trace, with empty
// scopes and resources dropped. Groups are ordered newest first.
func GroupByTraceID(docs []connect.TraceDocument) []Trace {
	order := []string{}
	groups := map[string]*Trace{}
	spans := map[string][]map[string]any{}

	for _, doc := range docs {
		for _, id := range traceIDs(doc) {
			g, ok := groups[id]
			if !ok {
				g = &Trace{ID: id}
				groups[id] = g
				order = append(order, id)
			}
			filtered, kept := filter(doc, id)
			g.Documents = append(g.Documents, filtered)
			spans[id] = append(spans[id], kept...)
		}
	}

	out := make([]Trace, 0, len(order))
	for _, id := range order {
		g := groups[id]
		summarize(g, spans[id])
		if g.SpansCount == 0 {
			continue
		}
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime > out[j].StartTime })
	return out
}

func summarize(t *Trace, spans []map[string]any) {
	t.SpansCount = len(spans)
	start, end := int64(math.MaxInt64), int64(math.MinInt64)
	for _, s := range spans {
		if v, ok := nanos(s["startTimeUnixNano"]); ok && v < start {
			start = v
		}
		if v, ok := nanos(s["endTimeUnixNano"]); ok && v > end {
			end = v
		}
		if t.Name == "" {
			if parent, _ := s["parentSpanId"].(string); parent == "" {
				t.Name, _ = s["name"].(string)
			}
		}
	}
	if t.Name == "" {
		short := t.ID
		if len(short) > 8 {
			short = short[:8]
		}
		t.Name = "Trace " + short
	}
	if start == math.MaxInt64 {
		return
	}
	t.StartTime = start / 1e6
	if end >= start {
		t.DurationMS = (end - start) / 1e6
	}
}

func traceIDs(doc connect.TraceDocument) []string {
	seen := map[string]bool{}
	var ids []string
	eachSpan(doc, func(s map[string]any) {
		id, _ := s["traceId"].(string)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	})
	return ids
}

func eachSpan(doc connect.TraceDocument, fn func(map[string]any)) {
	for _, rs := range objects(doc["resourceSpans"]) {
		for _, ss := range objects(rs["scopeSpans"]) {
			for _, s := range objects(ss["spans"]) {
				fn(s)
			}
		}
	}
}

// filter returns a copy of doc holding only the spans of traceID, and
// those spans.
func filter(doc connect.TraceDocument, traceID string) (connect.TraceDocument, []map[string]any) {
	var kept []map[string]any
	resources := []any{}
	for _, rs := range objects(doc["resourceSpans"]) {
		scopes := []any{}
		for _, ss := range objects(rs["scopeSpans"]) {
			spans := []any{}
			for _, s := range objects(ss["spans"]) {
				if id, _ := s["traceId"].(string); id != traceID {
					continue
				}
				cp := clone(s)
				if _, ok := cp["status"]; !ok || cp["status"] == nil {
					cp["status"] = clone(defaultStatus)
				}
				spans = append(spans, cp)
				kept = append(kept, cp)
			}
			if len(spans) == 0 {
				continue
			}
			scope := clone(ss)
			scope["spans"] = spans
			scopes = append(scopes, scope)
		}
		if len(scopes) == 0 {
			continue
		}
		res := clone(rs)
		res["scopeSpans"] = scopes
		resources = append(resources, res)
	}
	out := connect.TraceDocument(clone(doc))
	out["resourceSpans"] = resources
	return out, kept
}

func objects(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func clone(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// nanos reads an OTLP/JSON timestamp, which is a decimal string or a number.
func nanos(v any) (int64, bool) {
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	}
	return 0, false
}
