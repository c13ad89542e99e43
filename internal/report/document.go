package report

import "github.com/go-json-experiment/json"

// Document is the structured output of Format: an ordered list of blocks.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// Block is one top-level element of a Document. The concrete types are
// Heading, Table, Field, Paragraph, Details and Separator.
type Block interface {
	blockKind() string
}

// Heading is a section title. Level is 1..MaxHeadingLevel.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Table is a header row plus body rows of rich cells.
type Table struct {
	Header []string `json:"header"`
	Rows   [][]Cell `json:"rows"`
}

// Field is a single labeled scalar.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Paragraph is a run of inline text.
type Paragraph struct {
	Inlines []Inline `json:"inlines"`
}

// Details is a collapsible group of fields under a summary line.
type Details struct {
	Summary string  `json:"summary"`
	Items   []Field `json:"items"`
}

// Separator is a horizontal rule.
type Separator struct{}

func (Heading) blockKind() string   { return "heading" }
func (Table) blockKind() string     { return "table" }
func (Field) blockKind() string     { return "field" }
func (Paragraph) blockKind() string { return "paragraph" }
func (Details) blockKind() string   { return "details" }
func (Separator) blockKind() string { return "separator" }

// Kind names the block type, e.g. "heading" or "table".
func Kind(b Block) string { return b.blockKind() }

// Cell is the content of one table cell.
type Cell []Inline

// Style is the presentation of an Inline run.
type Style string

const (
	StylePlain    Style = "plain"
	StyleBold     Style = "bold"
	StyleEmphasis Style = "emphasis"
	StyleCode     Style = "code"
	// StyleBreak is a line break; Text is ignored.
	StyleBreak Style = "break"
)

// Inline is a styled run of text.
type Inline struct {
	Text  string `json:"text,omitempty"`
	Style Style  `json:"style"`
}

// Plain, Bold, Emphasis, Code and Break build Inline runs.
func Plain(s string) Inline    { return Inline{Text: s, Style: StylePlain} }
func Bold(s string) Inline     { return Inline{Text: s, Style: StyleBold} }
func Emphasis(s string) Inline { return Inline{Text: s, Style: StyleEmphasis} }
func Code(s string) Inline     { return Inline{Text: s, Style: StyleCode} }
func Break() Inline            { return Inline{Style: StyleBreak} }

// Text concatenates the text of a cell, turning breaks into newlines.
func (c Cell) Text() string {
	var out []byte
	for _, in := range c {
		if in.Style == StyleBreak {
			out = append(out, '\n')
			continue
		}
		out = append(out, in.Text...)
	}
	return string(out)
}

// Collect returns every block of type T in document order.
func Collect[T Block](d *Document) []T {
	var out []T
	for _, b := range d.Blocks {
		if t, ok := b.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Append adds blocks to the end of the document.
func (d *Document) Append(blocks ...Block) {
	d.Blocks = append(d.Blocks, blocks...)
}

// Len is the number of blocks in the document.
func (d *Document) Len() int { return len(d.Blocks) }

type blockEnvelope struct {
	Kind  string `json:"kind"`
	Block Block  `json:"block"`
}

// MarshalJSON tags every block with its kind so clients can switch on it.
func (d Document) MarshalJSON() ([]byte, error) {
	env := make([]blockEnvelope, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		env = append(env, blockEnvelope{Kind: b.blockKind(), Block: b})
	}
	return json.Marshal(struct {
		Blocks []blockEnvelope `json:"blocks"`
	}{env})
}
