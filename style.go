package main

import (
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

// Help text wraps narrower than the script view so it stays readable in
// small terminals.
const helpWrapAt = 78

var keyword = makeFgStyle("211")

func makeFgStyle(color string) func(string) string {
	return termenv.Style{}.Foreground(termenv.ColorProfile().Color(color)).Styled
}

func paragraph(s string) string {
	return "\n" + indent.String(wordwrap.String(strings.TrimSpace(s), helpWrapAt), 2) + "\n"
}
