package message

import "strings"

// MaxChunk is the per-message size limit of the chat transport.
const MaxChunk = 4096

// Split breaks text into chunks of at most max runes. It prefers paragraph
// boundaries, then line boundaries, and hard-splits only when neither fits.
func Split(text string, max int) []string {
	if max <= 0 {
		max = MaxChunk
	}
	if runeLen(text) <= max {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	add := func(piece, sep string) {
		if current.Len() == 0 {
			current.WriteString(piece)
			return
		}
		if runeLen(current.String())+runeLen(sep)+runeLen(piece) > max {
			flush()
			current.WriteString(piece)
			return
		}
		current.WriteString(sep)
		current.WriteString(piece)
	}

	for _, para := range strings.Split(text, "\n\n") {
		if runeLen(para) <= max {
			add(para, "\n\n")
			continue
		}
		flush()
		for _, line := range strings.Split(para, "\n") {
			if runeLen(line) <= max {
				add(line, "\n")
				continue
			}
			flush()
			chunks = append(chunks, hardSplit(line, max)...)
		}
		flush()
	}
	flush()
	return chunks
}

func hardSplit(s string, max int) []string {
	r := []rune(s)
	out := make([]string, 0, len(r)/max+1)
	for len(r) > max {
		out = append(out, string(r[:max]))
		r = r[max:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }
