package nfce

import (
	"regexp"
	"strings"
)

var (
	cnpjPattern = regexp.MustCompile(
		`(?i)CNPJ\s*:?\s*(\d{2})[./\- \t]?(\d{3})[./\- \t]?(\d{3})[./\- \t]?(\d{4})[./\- \t]?(\d{2})`)

	// Trailing run of upper-case words, optionally closed by "S.A." or "S/A".
	tradeNamePattern = regexp.MustCompile(`(\p{Lu}[\p{Lu} ]*(?:S\.A\.?|S/A)?)[^\p{L}]*$`)
)

// ExtractMerchant reads the store CNPJ and trade name from the header of the
// receipt. text must keep its line breaks. Missing fields are left empty and
// lower the merchant's confidence; they are never an error.
func ExtractMerchant(text string) Merchant {
	m := Merchant{Confidence: Low}

	loc := cnpjPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return m
	}
	for g := 1; g <= 5; g++ {
		m.CNPJ += text[loc[2*g]:loc[2*g+1]]
	}
	m.TradeName = tradeNameBefore(text, loc[0])

	if m.TradeName != "" && ValidCNPJ(m.CNPJ) {
		m.Confidence = High
	}
	return m
}

// tradeNameBefore looks at the text preceding the CNPJ label on its own
// line, then at the nearest non-blank line above it.
func tradeNameBefore(text string, pos int) string {
	head := text[:pos]
	lineStart := strings.LastIndexByte(head, '\n') + 1
	if name := tradeNameIn(head[lineStart:]); name != "" {
		return name
	}

	lines := strings.Split(head[:lineStart], "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		return tradeNameIn(lines[i])
	}
	return ""
}

func tradeNameIn(s string) string {
	sm := tradeNamePattern.FindStringSubmatch(s)
	if sm == nil {
		return ""
	}
	return strings.Join(strings.Fields(sm[1]), " ")
}

var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidCNPJ checks the two mod-11 check digits of a 14-digit CNPJ.
func ValidCNPJ(cnpj string) bool {
	if len(cnpj) != 14 || digitsOnly(cnpj) != cnpj {
		return false
	}
	if strings.Count(cnpj, cnpj[:1]) == 14 {
		return false
	}
	return cnpjDigit(cnpj[:12], cnpjWeights1) == int(cnpj[12]-'0') &&
		cnpjDigit(cnpj[:13], cnpjWeights2) == int(cnpj[13]-'0')
}

func cnpjDigit(body string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(body[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}
