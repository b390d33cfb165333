package scenario

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// sectionTitles maps line type groups to the headings used in the rendered
// script. Order follows typeOrder.
var sectionTitles = map[LineType]string{
	LineTypeOpening:  "Opening",
	LineTypeQuestion: "Questions",
	LineTypeResponse: "Responses",
	LineTypeClosing:  "Closing",
	LineTypeFiller:   "Fillers",
}

// Script renders the scenario as a markdown document for the pager view.
// Lines are grouped by type in play order; lines without audio are marked so
// the reader can see generation progress at a glance.
func (s *Scenario) Script() string {
	lines := make([]VoiceLine, len(s.Lines))
	copy(lines, s.Lines)
	SortLines(lines)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Title)
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Description)
	}

	var current LineType
	for _, ln := range lines {
		if ln.Type != current {
			current = ln.Type
			fmt.Fprintf(&b, "## %s\n\n", sectionTitles[current])
		}
		marker := " "
		if ln.HasAudio() {
			marker = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", marker, ln.Text)
	}
	return b.String()
}

// PlainScript extracts the plain utterance text from a markdown scenario
// script, one entry per list item. It is the inverse of Script for documents
// authored or edited on the web side, where lines may carry inline markdown
// the TTS engine should never see.
func PlainScript(markdown []byte) ([]string, error) {
	md := goldmark.New()
	reader := text.NewReader(markdown)
	doc := md.Parser().Parse(reader)

	var out []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		item, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		collectText(item, markdown, &buf)
		s := strings.TrimSpace(buf.String())
		// Drop task-list markers left over from rendered scripts.
		s = strings.TrimPrefix(s, "[ ]")
		s = strings.TrimPrefix(s, "[x]")
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk script markdown: %w", err)
	}
	return out, nil
}

// collectText appends the raw text content beneath n to buf.
func collectText(n ast.Node, source []byte, buf *bytes.Buffer) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			continue
		}
		collectText(c, source, buf)
	}
}
