// Package text cleans candidate text before it is buffered
// Pipeline order
// 1 drop control bytes and invalid UTF-8
// 2 Unicode NFC composition
// 3 remove format characters except the emoji joiner
// 4 width fold fullwidth forms
// 5 collapse whitespace runs, keeping line breaks, and trim
package text

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

const zwj = '\u200d'

var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFC,
			runes.Remove(runes.Predicate(func(r rune) bool { return r != zwj && unicode.Is(unicode.Cf, r) })),
			width.Fold,
		)
	},
}

// Clean returns s ready for storage and joining into a turn
// the result is empty when s held only whitespace or invisible characters
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = Sanitize(s)

	tr := chainPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		out = s
	}
	return collapseSpaces(out)
}

// Sanitize drops NUL, ASCII controls other than tab and line breaks, DEL, C1 controls and invalid UTF-8
// it returns s unchanged when nothing needs cleaning
func Sanitize(s string) string {
	n := len(s)
	i := 0
	for i < n {
		c := s[i]
		if c < 0x80 {
			if bad(c) {
				break
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if (r == utf8.RuneError && size == 1) || (r >= 0x80 && r <= 0x9f) {
			break
		}
		i += size
	}
	if i == n {
		return s
	}

	var b strings.Builder
	b.Grow(n)
	b.WriteString(s[:i])
	for i < n {
		c := s[i]
		if c < 0x80 {
			if !bad(c) {
				b.WriteByte(c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		if r < 0x80 || r > 0x9f {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func bad(c byte) bool {
	return (c < 0x20 && c != '\n' && c != '\r' && c != '\t') || c == 0x7f
}

// collapseSpaces turns whitespace runs into one space, or one newline when the run held a line break
func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inWS, sawNL := false, false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWS = true
			if r == '\n' || r == '\r' {
				sawNL = true
			}
			continue
		}
		if inWS && b.Len() > 0 {
			if sawNL {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		inWS, sawNL = false, false
		b.WriteRune(r)
	}
	return b.String()
}
