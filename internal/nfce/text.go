package nfce

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	newlineRun    = regexp.MustCompile(`[\r\n]+`)
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}]+`)
	codeResidue   = regexp.MustCompile(`(?i)\(\s*c[oó]d(?:igo)?\s*[:.]?[^)]*\)`)
)

// checkInput applies the hard-failure checks. It returns nil when the text
// may be parsed.
func checkInput(raw string, maxChars int) *ParseError {
	if !utf8.ValidString(raw) {
		return newParseError(KindEncoding, ErrEncoding, "input is not valid UTF-8")
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return newParseError(KindEncoding, ErrEncoding, "input contains NUL bytes")
	}
	if n := utf8.RuneCountInString(raw); n > maxChars {
		return newParseError(KindInputTooLarge, ErrInputTooLarge,
			fmt.Sprintf("input has %d characters, limit is %d", n, maxChars))
	}
	if strings.TrimSpace(raw) == "" {
		return newParseError(KindEmptyInput, ErrEmptyInput, "input is blank")
	}
	return nil
}

// canonicalText composes accents (NFC), folds CRLF/CR line endings to LF
// and strips a leading byte order mark. Line structure is preserved.
func canonicalText(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// NormalizeBody flattens text into the single line the item tokenizer scans:
// newline runs become one space, then whitespace runs become one space.
func NormalizeBody(text string) string {
	s := newlineRun.ReplaceAllString(text, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CatalogKey returns the form of a product description used to match it
// against a product catalog: accents removed, code residue dropped,
// upper case, single spaces.
func CatalogKey(description string) string {
	s := codeResidue.ReplaceAllString(description, " ")
	folded, _, err := transform.String(foldAccents(), s)
	if err == nil {
		s = folded
	}
	return strings.ToUpper(NormalizeBody(s))
}

// foldAccents builds a fresh transformer; chained transformers carry state
// and must not be shared between goroutines.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
