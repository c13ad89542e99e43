package report

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// paragraphs splits scanner free text into its <p> paragraphs. Text outside
// paragraph elements is kept as paragraphs of its own. Text without
// paragraph markup comes back as a single trimmed paragraph.
func paragraphs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !strings.Contains(strings.ToLower(s), "<p") {
		return []string{s}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return []string{s}
	}
	if doc.Find("p").Length() == 0 {
		return []string{s}
	}

	var (
		out   []string
		loose strings.Builder
	)
	flush := func() {
		if text := strings.TrimSpace(loose.String()); text != "" {
			out = append(out, text)
		}
		loose.Reset()
	}
	doc.Find("body").Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) != "p" {
			loose.WriteString(node.Text())
			return
		}
		flush()
		if text := strings.TrimSpace(node.Text()); text != "" {
			out = append(out, text)
		}
	})
	flush()
	return out
}

// stripParagraphs removes paragraph markup, keeping one paragraph per line.
func stripParagraphs(s string) string {
	return strings.Join(paragraphs(s), "\n")
}
