package report

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// MaxHeadingLevel caps heading depth; deeper nesting keeps this level.
	MaxHeadingLevel = 6

	// ConfigPrefix marks configuration keys.
	ConfigPrefix = "@"

	// SummaryHeading titles the AI summary section.
	SummaryHeading = "AI Summary"
)

var (
	configHeader = []string{"Key", "Value"}
	alertHeader  = []string{"Name / Risk", "Details"}

	// instanceFields are listed in this order when non-empty.
	instanceFields = []string{"id", "method", "uri", "param", "attack", "evidence"}
)

// Format renders any JSON value into a Document. It never fails: shapes it
// does not recognise fall back to a generic structural walk, and values with
// nothing to show render nothing.
func Format(v Value) *Document {
	f := &formatter{doc: &Document{}}

	obj, ok := v.(Object)
	if !ok {
		f.value("", v, 1)
		return f.doc
	}

	if summary, rest, ok := splitSummary(obj); ok {
		f.summary(summary)
		obj = rest
	}
	f.object(obj, 1)
	return f.doc
}

type formatter struct {
	doc *Document
}

func nextLevel(level int) int {
	if level >= MaxHeadingLevel {
		return MaxHeadingLevel
	}
	return level + 1
}

func (f *formatter) heading(level int, text string) {
	f.doc.Append(Heading{Level: min(max(level, 1), MaxHeadingLevel), Text: text})
}

// splitSummary pulls ai_analysis.response (or a bare string ai_analysis)
// out of the root object.
func splitSummary(obj Object) (string, Object, bool) {
	raw, ok := obj.Get("ai_analysis")
	if !ok {
		return "", obj, false
	}

	switch a := raw.(type) {
	case String:
		return strings.TrimSpace(string(a)), obj.Without("ai_analysis"), true
	case Object:
		resp, ok := a.Get("response")
		if !ok {
			return "", obj, false
		}
		s, ok := resp.(String)
		if !ok {
			return "", obj, false
		}
		rest := a.Without("response")
		out := Object{Members: make([]Member, 0, len(obj.Members))}
		for _, m := range obj.Members {
			if m.Key == "ai_analysis" {
				if len(rest.Members) == 0 {
					continue
				}
				m.Value = rest
			}
			out.Members = append(out.Members, m)
		}
		return strings.TrimSpace(string(s)), out, true
	}
	return "", obj, false
}

func (f *formatter) summary(text string) {
	if text == "" {
		return
	}
	f.heading(1, SummaryHeading)
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			f.doc.Append(Paragraph{Inlines: []Inline{Plain(para)}})
		}
	}
}

// object renders one level: configuration table first, then the site array
// (if any), then the remaining members. Config hoisting does not consume a
// heading level.
func (f *formatter) object(obj Object, level int) {
	config, content := partition(obj)
	if len(config) > 0 {
		f.configTable(config)
	}

	if alerts, ok := content.Get("alerts"); ok && isAlertList(alerts) {
		f.site(content, alerts.(Array), level)
		return
	}

	if site, ok := content.Get("site"); ok {
		if _, isArr := site.(Array); isArr {
			f.value("site", site, level)
			content = content.Without("site")
		}
	}

	for _, m := range content.Members {
		f.value(m.Key, m.Value, level)
	}
}

func partition(obj Object) (config []Member, content Object) {
	for _, m := range obj.Members {
		if strings.HasPrefix(m.Key, ConfigPrefix) {
			config = append(config, m)
		} else {
			content.Members = append(content.Members, m)
		}
	}
	return config, content
}

func (f *formatter) configTable(config []Member) {
	t := Table{Header: configHeader}
	for _, m := range config {
		var text string
		switch v := m.Value.(type) {
		case Object, Array:
			text = string(Encode(v))
		default:
			text, _ = Scalar(v)
		}
		t.Rows = append(t.Rows, []Cell{{Plain(configLabel(m.Key))}, {Code(text)}})
	}
	f.doc.Append(t)
}

// configLabel turns "@programName" into "program name".
func configLabel(key string) string {
	name := strings.TrimPrefix(key, ConfigPrefix)
	if name == "" {
		return key
	}

	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if r == '_' || r == '-' {
			b.WriteByte(' ')
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// value is the generic structural walk for one key/value pair.
func (f *formatter) value(key string, v Value, level int) {
	switch v := v.(type) {
	case Object:
		if key != "" {
			f.heading(level, key)
			level = nextLevel(level)
		}
		f.object(v, level)
	case Array:
		if key != "" {
			f.heading(level, key)
		}
		for _, el := range v {
			f.element(el, nextLevel(level))
			f.doc.Append(Separator{})
		}
	case String:
		if text := stripParagraphs(string(v)); text != "" {
			if key == "" {
				f.doc.Append(Paragraph{Inlines: []Inline{Plain(text)}})
				return
			}
			f.doc.Append(Field{Label: key, Value: text})
		}
	case Number, Bool:
		text, _ := Scalar(v)
		if key == "" {
			f.doc.Append(Paragraph{Inlines: []Inline{Plain(text)}})
			return
		}
		f.doc.Append(Field{Label: key, Value: text})
	}
}

func (f *formatter) element(el Value, level int) {
	switch el := el.(type) {
	case Object:
		f.object(el, level)
	case Array:
		for _, inner := range el {
			f.element(inner, level)
		}
	default:
		f.value("", el, level)
	}
}

// isAlertList reports whether v is a non-empty array of objects.
func isAlertList(v Value) bool {
	arr, ok := v.(Array)
	if !ok || len(arr) == 0 {
		return false
	}
	for _, el := range arr {
		if _, ok := el.(Object); !ok {
			return false
		}
	}
	return true
}

// site renders a site entry: the alert table, one Details block per
// instance, then whatever else the site carries.
func (f *formatter) site(content Object, alerts Array, level int) {
	f.heading(level, "alerts")

	t := Table{Header: alertHeader}
	var instances []Details
	for i, el := range alerts {
		alert := el.(Object)
		name := alertName(alert, i)
		t.Rows = append(t.Rows, []Cell{nameCell(alert, name), detailCell(alert)})
		instances = append(instances, instanceDetails(alert, name)...)
	}
	f.doc.Append(t)
	for _, d := range instances {
		f.doc.Append(d)
	}

	for _, m := range content.Without("alerts").Members {
		f.value(m.Key, m.Value, level)
	}
}

func alertName(alert Object, i int) string {
	for _, key := range []string{"name", "alert"} {
		if s, ok := LookupString(alert, key); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return fmt.Sprintf("alert %d", i+1)
}

func nameCell(alert Object, name string) Cell {
	cell := Cell{Bold(name)}
	if risk, ok := LookupString(alert, "riskdesc"); ok && strings.TrimSpace(risk) != "" {
		cell = append(cell, Break(), Plain(strings.TrimSpace(risk)))
	}
	return cell
}

func detailCell(alert Object) Cell {
	var cell Cell
	for _, sec := range []struct{ key, label string }{
		{"desc", "Description"},
		{"solution", "Solution"},
		{"reference", "References"},
	} {
		s, ok := LookupString(alert, sec.key)
		if !ok {
			continue
		}
		paras := paragraphs(s)
		if len(paras) == 0 {
			continue
		}
		if len(cell) > 0 {
			cell = append(cell, Break())
		}
		cell = append(cell, Bold(sec.label+":"))
		for _, p := range paras {
			cell = append(cell, Break(), Emphasis(p))
		}
	}
	return cell
}

func instanceDetails(alert Object, name string) []Details {
	raw, ok := alert.Get("instances")
	if !ok {
		return nil
	}
	arr, ok := raw.(Array)
	if !ok {
		return nil
	}

	var out []Details
	n := 0
	for _, el := range arr {
		inst, ok := el.(Object)
		if !ok {
			continue
		}
		n++
		d := Details{Summary: fmt.Sprintf("%s: instance %d", name, n)}
		for _, key := range instanceFields {
			v, ok := inst.Get(key)
			if !ok {
				continue
			}
			if text, ok := Scalar(v); ok && strings.TrimSpace(text) != "" {
				d.Items = append(d.Items, Field{Label: key, Value: text})
			}
		}
		out = append(out, d)
	}
	return out
}
