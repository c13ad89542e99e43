package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/markdown"
)

// RenderMarkdown writes doc to w as GitHub-flavoured Markdown.
func RenderMarkdown(doc *Document, w io.Writer) error {
	md := markdown.NewMarkdown(w)
	for _, b := range doc.Blocks {
		writeBlock(md, b)
	}
	if err := md.Build(); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	return nil
}

// Markdown renders doc to a string.
func Markdown(doc *Document) string {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer do not fail.
	_ = RenderMarkdown(doc, &buf)
	return buf.String()
}

func writeBlock(md *markdown.Markdown, b Block) {
	switch b := b.(type) {
	case Heading:
		switch min(max(b.Level, 1), MaxHeadingLevel) {
		case 1:
			md.H1(b.Text)
		case 2:
			md.H2(b.Text)
		case 3:
			md.H3(b.Text)
		case 4:
			md.H4(b.Text)
		case 5:
			md.H5(b.Text)
		default:
			md.H6(b.Text)
		}
	case Table:
		rows := make([][]string, len(b.Rows))
		for i, row := range b.Rows {
			rows[i] = make([]string, len(row))
			for j, cell := range row {
				rows[i][j] = cellText(cell)
			}
		}
		md.Table(markdown.TableSet{Header: b.Header, Rows: rows})
	case Field:
		md.PlainText(fieldText(b))
	case Paragraph:
		md.PlainText(inlineText(b.Inlines, "\n"))
	case Details:
		items := make([]string, len(b.Items))
		for i, f := range b.Items {
			items[i] = "- " + fieldText(f)
		}
		md.Details(b.Summary, strings.Join(items, "\n"))
	case Separator:
		md.HorizontalRule()
	}
	md.PlainText("")
}

func fieldText(f Field) string {
	return markdown.Bold(f.Label+":") + " " + codeSpan(f.Value)
}

func cellText(c Cell) string {
	s := inlineText(c, "<br>")
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", "<br>")
}

func inlineText(ins []Inline, lineBreak string) string {
	var b strings.Builder
	for _, in := range ins {
		switch in.Style {
		case StyleBreak:
			b.WriteString(lineBreak)
		case StyleBold:
			b.WriteString(markdown.Bold(in.Text))
		case StyleEmphasis:
			b.WriteString(markdown.Italic(in.Text))
		case StyleCode:
			b.WriteString(codeSpan(in.Text))
		default:
			b.WriteString(in.Text)
		}
	}
	return b.String()
}

// codeSpan wraps s in backticks, widening the fence when s contains one.
// Code spans cannot hold line breaks, so newlines become spaces.
func codeSpan(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
	if s == "" {
		return "``"
	}
	if !strings.Contains(s, "`") {
		return markdown.Code(s)
	}
	fence := "``"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		return fence + " " + s + " " + fence
	}
	return fence + s + fence
}
