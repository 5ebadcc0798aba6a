package chunk

import (
	"unicode"
	"unicode/utf8"
)

// token is a prose token with its byte span and 1-indexed line number.
type token struct {
	start int // byte offset of first byte
	end   int // byte offset past last byte
	line  int // line the token starts on
}

// isCJK reports whether r is a CJK character that tokenizes standalone.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// tokenizeProse splits text into whitespace-separated runs, emitting each
// CJK character as its own token.
func tokenizeProse(data []byte) []token {
	var tokens []token
	line := 1
	cur := -1 // start of the in-progress run, -1 if none
	curLine := 1

	flush := func(end int) {
		if cur >= 0 {
			tokens = append(tokens, token{start: cur, end: end, line: curLine})
			cur = -1
		}
	}

	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		switch {
		case unicode.IsSpace(r):
			flush(i)
			if r == '\n' {
				line++
			}
		case isCJK(r):
			flush(i)
			tokens = append(tokens, token{start: i, end: i + size, line: line})
		default:
			if cur < 0 {
				cur = i
				curLine = line
			}
		}
		i += size
	}
	flush(len(data))

	return tokens
}
