package report

import "strings"

// SummaryKey is the root member carrying the AI analysis.
const SummaryKey = "ai_analysis"

// HasSummary reports whether v already carries a non-empty AI summary.
func HasSummary(v Value) bool {
	obj, ok := v.(Object)
	if !ok {
		return false
	}
	text, _, ok := splitSummary(obj)
	return ok && text != ""
}

// WithSummary returns v with ai_analysis.response set to text. Any existing
// ai_analysis member is replaced in place; otherwise the new member goes
// first. Non-object roots are returned unchanged.
func WithSummary(v Value, text string) Value {
	obj, ok := v.(Object)
	if !ok {
		return v
	}
	analysis := Object{Members: []Member{{Key: "response", Value: String(strings.TrimSpace(text))}}}

	out := Object{Members: make([]Member, 0, len(obj.Members)+1)}
	replaced := false
	for _, m := range obj.Members {
		if m.Key == SummaryKey {
			if prev, ok := m.Value.(Object); ok {
				analysis.Members = append(analysis.Members, prev.Without("response").Members...)
			}
			m.Value = analysis
			replaced = true
		}
		out.Members = append(out.Members, m)
	}
	if !replaced {
		out.Members = append([]Member{{Key: SummaryKey, Value: analysis}}, out.Members...)
	}
	return out
}
