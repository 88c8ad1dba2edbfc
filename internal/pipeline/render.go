package pipeline

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const minRenderedLength = 100

var (
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe  = regexp.MustCompile(`\*([^*]+)\*`)
	orderedRe = regexp.MustCompile(`^\d+\.\s+`)
)

// HTMLRenderer converts the markdown-like report text into sanitized markup
// with citation markers turned into source-linked anchors. Structural
// conversion aside, citation replacement is the only transformation: no
// other content is reordered or dropped.
type HTMLRenderer struct {
	policy *bluemonday.Policy
}

func NewHTMLRenderer() *HTMLRenderer {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "h2", "h3", "h4", "p", "ul", "ol", "li", "strong", "em", "br")
	p.AllowAttrs("href", "class", "title", "target", "rel", "data-source-title").OnElements("a")
	p.AllowStandardURLs()
	return &HTMLRenderer{policy: p}
}

// Render converts text to HTML, replacing every marker whose ids resolve in
// index with anchor elements; unresolved ids stay as literal bracketed text.
// Fails with ErrRenderingFailed when the sanitized result is empty or
// implausibly short.
func (r *HTMLRenderer) Render(text string, index CitationIndex) (string, error) {
	var (
		out     strings.Builder
		para    []string
		listTag string // "ul", "ol" or ""
	)

	closeList := func() {
		if listTag != "" {
			out.WriteString("</" + listTag + ">\n")
			listTag = ""
		}
	}
	flushPara := func() {
		if len(para) > 0 {
			out.WriteString("<p>" + strings.Join(para, " ") + "</p>\n")
			para = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flushPara()
			closeList()
		case strings.HasPrefix(line, "#"):
			flushPara()
			closeList()
			level := 0
			for level < 4 && level < len(line) && line[level] == '#' {
				level++
			}
			body := strings.TrimSpace(strings.TrimLeft(line, "#"))
			out.WriteString(fmt.Sprintf("<h%d>%s</h%d>\n", level, r.inline(body, index), level))
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			flushPara()
			if listTag != "ul" {
				closeList()
				out.WriteString("<ul>\n")
				listTag = "ul"
			}
			out.WriteString("<li>" + r.inline(line[2:], index) + "</li>\n")
		case orderedRe.MatchString(line):
			flushPara()
			if listTag != "ol" {
				closeList()
				out.WriteString("<ol>\n")
				listTag = "ol"
			}
			out.WriteString("<li>" + r.inline(orderedRe.ReplaceAllString(line, ""), index) + "</li>\n")
		default:
			closeList()
			para = append(para, r.inline(line, index))
		}
	}
	flushPara()
	closeList()

	sanitized := strings.TrimSpace(r.policy.Sanitize(out.String()))
	if len(sanitized) < minRenderedLength {
		return "", ErrRenderingFailed
	}
	return sanitized, nil
}

// inline escapes a text fragment, applies emphasis markup, and converts
// citation markers.
func (r *HTMLRenderer) inline(s string, index CitationIndex) string {
	s = html.EscapeString(s)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRe.ReplaceAllString(s, "<em>$1</em>")
	return replaceCitations(s, index)
}

// replaceCitations rewrites each marker id-by-id: resolved ids become
// anchors, unresolved ids remain literal bracketed text.
func replaceCitations(s string, index CitationIndex) string {
	return citationRe.ReplaceAllStringFunc(s, func(marker string) string {
		body := marker[1 : len(marker)-1]
		var b strings.Builder
		for _, id := range expandMarker(body) {
			src, ok := index[id]
			if !ok {
				b.WriteString("[" + id + "]")
				continue
			}
			b.WriteString(citationAnchor(id, src.URL, src.Title))
		}
		return b.String()
	})
}

func citationAnchor(id, srcURL, title string) string {
	host := ""
	if u, err := url.Parse(srcURL); err == nil {
		host = u.Hostname()
	}
	return fmt.Sprintf(
		`<a href="%s" class="citation" target="_blank" rel="noopener noreferrer" title="%s" data-source-title="%s">[%s]</a>`,
		html.EscapeString(srcURL), html.EscapeString(host), html.EscapeString(title), id,
	)
}
