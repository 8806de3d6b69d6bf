// Package highlight builds text snippets with every match of a term wrapped
// in <mark> tags.
package highlight

import (
	"sort"
	"strings"
)

const (
	OpenTag  = "<mark>"
	CloseTag = "</mark>"
	Ellipsis = "..."
)

type Options struct {
	// Window is the number of characters kept on each side of a match.
	Window int
	// MaxPositions caps how many matches are highlighted.
	MaxPositions int
	// Fallback is the length of the plain prefix returned when there is
	// nothing to highlight.
	Fallback int
}

func DefaultOptions() Options {
	return Options{Window: 100, MaxPositions: 50, Fallback: 500}
}

type segment struct {
	start, end int
	matches    []int
}

// Snippet highlights the termLen characters starting at each position
// (character offsets into text). Context windows that overlap or touch are
// joined, and an ellipsis marks every place the text was cut.
func Snippet(text string, positions []int, termLen int, opts Options) string {
	runes := []rune(text)
	matches := Clean(positions, termLen, len(runes), opts.MaxPositions)
	if len(matches) == 0 {
		if opts.Fallback > 0 && len(runes) > opts.Fallback {
			return string(runes[:opts.Fallback])
		}
		return text
	}

	var segments []segment
	for _, p := range matches {
		start := max(0, p-opts.Window)
		end := min(len(runes), p+termLen+opts.Window)
		if n := len(segments); n > 0 && start <= segments[n-1].end {
			last := &segments[n-1]
			last.end = max(last.end, end)
			last.matches = append(last.matches, p)
			continue
		}
		segments = append(segments, segment{start: start, end: end, matches: []int{p}})
	}

	var b strings.Builder
	for i, seg := range segments {
		if i > 0 || seg.start > 0 {
			b.WriteString(Ellipsis)
		}
		cursor := seg.start
		for _, p := range seg.matches {
			b.WriteString(string(runes[cursor:p]))
			b.WriteString(OpenTag)
			b.WriteString(string(runes[p : p+termLen]))
			b.WriteString(CloseTag)
			cursor = p + termLen
		}
		b.WriteString(string(runes[cursor:seg.end]))
	}
	if segments[len(segments)-1].end < len(runes) {
		b.WriteString(Ellipsis)
	}
	return b.String()
}

// Clean sorts and deduplicates positions, drops those whose match would not
// fit in a text of textLen characters or would overlap the previous match,
// and keeps at most limit of them.
func Clean(positions []int, termLen, textLen, limit int) []int {
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	out := make([]int, 0, len(sorted))
	next := 0
	for _, p := range sorted {
		if p < next || p < 0 || p+termLen > textLen {
			continue
		}
		out = append(out, p)
		next = p + termLen
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
