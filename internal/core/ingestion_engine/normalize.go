package ingestion_engine

import (
	"strings"
	"unicode"
)

// lineBreaks folds every line boundary into "\n". "\r\n" must come before "\r".
var lineBreaks = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\v", "\n",
	"\f", "\n",
	"\x1c", "\n",
	"\x1d", "\n",
	"\x1e", "\n",
	"\u0085", "\n",
	"\u2028", "\n",
	"\u2029", "\n",
)

// Normalize trims every line, splits lines on double spaces, drops blank
// fragments and joins the rest with "\n". Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	var out []string
	for _, line := range strings.Split(lineBreaks.Replace(text), "\n") {
		for _, phrase := range strings.Split(trimSpace(line), "  ") {
			if phrase = trimSpace(phrase); phrase != "" {
				out = append(out, phrase)
			}
		}
	}
	return strings.Join(out, "\n")
}

// isSpace also counts the ASCII information separators \x1c-\x1f, which
// unicode.IsSpace does not.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, isSpace)
}
