package voice

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// MinPostLength is the character floor below which a post is ignored by voice
// analysis and pillar discovery.
const MinPostLength = 50

// StripHTML reduces imported post markup to plain text. Block-level elements
// and line breaks become newlines; runs of blank lines collapse to one.
func StripHTML(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	if !strings.Contains(trimmed, "<") {
		return trimmed, nil
	}

	doc, err := html.Parse(strings.NewReader(trimmed))
	if err != nil {
		return "", eris.Wrap(err, "parsing imported post html")
	}

	var builder strings.Builder
	appendText(&builder, doc)

	return collapseBlankLines(builder.String()), nil
}

var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "ul": {}, "ol": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"blockquote": {}, "tr": {},
}

func appendText(builder *strings.Builder, node *html.Node) {
	if node == nil {
		return
	}

	switch node.Type {
	case html.TextNode:
		builder.WriteString(node.Data)
		return
	case html.ElementNode:
		name := strings.ToLower(node.Data)
		if name == "script" || name == "style" || name == "head" {
			return
		}
		if _, block := blockElements[name]; block {
			builder.WriteString("\n")
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		appendText(builder, child)
	}
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := true

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				cleaned = append(cleaned, "")
			}
			blank = true
			continue
		}
		cleaned = append(cleaned, line)
		blank = false
	}

	for len(cleaned) > 0 && cleaned[len(cleaned)-1] == "" {
		cleaned = cleaned[:len(cleaned)-1]
	}

	return strings.Join(cleaned, "\n")
}

// qualifies reports whether a post body is long enough to inform analysis.
// Length is counted in runes so multi-byte text is not over-counted.
func qualifies(body string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(body)) >= MinPostLength
}
