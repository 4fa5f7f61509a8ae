// Package chunking splits document text into overlapping, bounded segments
// for embedding and retrieval.
package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultSize    = 512
	defaultOverlap = 64
)

// Options controls chunk boundaries. Zero values fall back to defaults.
type Options struct {
	Size    int
	Overlap int
}

func (o Options) normalize() Options {
	if o.Size <= 0 {
		o.Size = defaultSize
	}
	if o.Overlap <= 0 || o.Overlap >= o.Size {
		o.Overlap = defaultOverlap
	}
	return o
}

// Split breaks text into chunks no longer than Size runes, overlapping
// consecutive chunks by Overlap runes. It prefers to break on paragraph,
// then line, then sentence, then word boundaries before falling back to a
// hard character cut, so a chunk rarely severs a sentence mid-word.
func Split(text string, opts Options) []string {
	opts = opts.normalize()
	text = normalizeWhitespace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= opts.Size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + opts.Size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := boundaryCut(runes, start, end)
		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))
		next := cut - opts.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return dropEmpty(chunks)
}

// boundaryCut looks backward from end for the highest-priority boundary
// within the second half of the window, [start+(end-start)/2, end),
// falling back to end itself.
func boundaryCut(runes []rune, start, end int) int {
	windowStart := start + (end-start)/2
	if cut := lastIndexIn(runes, windowStart, end, "\n\n"); cut > 0 {
		return cut
	}
	if cut := lastIndexIn(runes, windowStart, end, "\n"); cut > 0 {
		return cut
	}
	if cut := lastIndexAny(runes, windowStart, end, ".!?"); cut > 0 {
		return cut
	}
	if cut := lastIndexIn(runes, windowStart, end, " "); cut > 0 {
		return cut
	}
	return end
}

func lastIndexIn(runes []rune, from, to int, sep string) int {
	segment := string(runes[from:to])
	idx := strings.LastIndex(segment, sep)
	if idx < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(segment[:idx]) + utf8.RuneCountInString(sep)
}

func lastIndexAny(runes []rune, from, to int, cutset string) int {
	segment := string(runes[from:to])
	idx := strings.LastIndexAny(segment, cutset)
	if idx < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(segment[:idx]) + 1
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func dropEmpty(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
