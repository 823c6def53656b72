// Package chunker splits outgoing notification text into parts that fit a
// delivery channel's message limit.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultLimit matches common chat message limits.
const DefaultLimit = 2000

// Split breaks text into parts of at most limit characters. It prefers
// paragraph boundaries, then line boundaries, then word boundaries, and
// cuts inside a word only when the word alone exceeds the limit. Short text
// returns a single part; blank text returns nil.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size(text) <= limit {
		return []string{text}
	}

	return pack(splitBlocks(text), "\n\n", limit, func(block string) []string {
		return pack(strings.Split(block, "\n"), "\n", limit, func(line string) []string {
			return pack(strings.Fields(line), " ", limit, func(word string) []string {
				return cut(word, limit)
			})
		})
	})
}

// splitBlocks splits text on blank lines and before markdown headings.
func splitBlocks(text string) []string {
	var blocks, current []string
	flush := func() {
		if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
			blocks = append(blocks, t)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
			continue
		case strings.HasPrefix(trimmed, "#"):
			flush()
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// pack greedily joins pieces with sep up to limit. Pieces that are too
// large on their own are handed to split.
func pack(pieces []string, sep string, limit int, split func(string) []string) []string {
	var out []string
	cur := ""
	flush := func() {
		if t := strings.TrimSpace(cur); t != "" {
			out = append(out, t)
		}
		cur = ""
	}

	for _, p := range pieces {
		switch {
		case size(p) > limit:
			flush()
			out = append(out, split(p)...)
		case cur == "":
			cur = p
		case size(cur)+size(sep)+size(p) <= limit:
			cur += sep + p
		default:
			flush()
			cur = p
		}
	}
	flush()
	return out
}

// cut splits s every limit runes.
func cut(s string, limit int) []string {
	var out []string
	for size(s) > limit {
		i := 0
		for n := 0; n < limit; n++ {
			_, w := utf8.DecodeRuneInString(s[i:])
			i += w
		}
		out = append(out, s[:i])
		s = s[i:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func size(s string) int {
	return utf8.RuneCountInString(s)
}
