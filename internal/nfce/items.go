package nfce

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// itemPattern matches one product record of the flattened receipt body:
//
//	DESCRIPTION (Código: CODE) Qtde.: QTY UN: UNIT Vl. Unit.: PRICE Vl. Total TOTAL
//
// Numeric fields are taken as whole tokens up to the next label so OCR
// damage reaches ParseNumber and falls back instead of losing the item. The
// "Vl. Total" section is optional so truncated OCR still yields the item.
var itemPattern = regexp.MustCompile(
	`(\p{Lu}(?:[\p{Lu}\d .\-/]|,\d)*?)\s*` +
		`\(\s*(?i:C[óo]d(?:igo)?)\s*[:.]?\s*([A-Za-z0-9]+)\s*\)\s*` +
		`(?i:Qtde?)\.?\s*:?\s*(\S*?)\s*` +
		`(?i:UN)\s*:?\s*(\S{0,6}?)\s*` +
		`(?i:Vl)\.?\s*(?i:Unit)\.?\s*:?\s*(\S*?)` +
		`(?:\s*(?i:Vl)\.?\s*(?i:Total)\s*:?\s*(\S*)|\s|$)`)

// codeLabelPattern finds the first product record.
var codeLabelPattern = regexp.MustCompile(`\(\s*(?i:C[óo]d(?:igo)?)`)

// bannerPattern is the DANFE title printed between the merchant header and
// the items.
var bannerPattern = regexp.MustCompile(
	`(?i)Documento\s+Auxiliar\s+da\s+(?:Nota\s+Fiscal\s+de\s+Consumidor\s+Eletr[oô]nica|NFC-?e)`)

const (
	groupDescription = 1 + iota
	groupCode
	groupQuantity
	groupUnit
	groupUnitPrice
	groupTotalPrice
)

const defaultUnit = "UN"

// ItemScanner walks a flattened receipt body left to right, yielding one
// line item per match. Each scanner owns its cursor.
type ItemScanner struct {
	body string
	pos  int
	seq  int
}

// NewItemScanner starts a scan at the beginning of body.
func NewItemScanner(body string) *ItemScanner {
	return &ItemScanner{body: body, pos: itemsStart(body)}
}

// itemsStart skips the merchant CNPJ and the DANFE banner when they come
// before the first product record, so an upper case header is not read as
// part of the first description.
func itemsStart(body string) int {
	first := codeLabelPattern.FindStringIndex(body)
	if first == nil {
		return 0
	}
	header := body[:first[0]]
	start := 0
	for _, p := range []*regexp.Regexp{cnpjPattern, bannerPattern} {
		if loc := p.FindStringIndex(header); loc != nil && loc[1] > start {
			start = loc[1]
		}
	}
	return start
}

// Next returns the next item and true, or false once no further record
// matches.
func (s *ItemScanner) Next() (LineItem, bool) {
	if s.pos >= len(s.body) {
		return LineItem{}, false
	}
	rest := s.body[s.pos:]
	loc := itemPattern.FindStringSubmatchIndex(rest)
	if loc == nil || loc[1] == 0 {
		s.pos = len(s.body)
		return LineItem{}, false
	}
	s.pos += loc[1]
	s.seq++

	group := func(n int) string {
		if loc[2*n] < 0 {
			return ""
		}
		return rest[loc[2*n]:loc[2*n+1]]
	}

	description := strings.TrimSpace(group(groupDescription))
	item := LineItem{
		Seq:                   s.seq,
		Description:           description,
		NormalizedDescription: CatalogKey(description),
		ProductCode:           group(groupCode),
		Quantity:              ParseQuantity(group(groupQuantity)),
		Unit:                  normalizeUnit(group(groupUnit)),
		UnitPrice:             ParsePrice(group(groupUnitPrice)),
		TotalPrice:            ParsePrice(group(groupTotalPrice)),
	}
	return item, true
}

// TokenizeItems extracts every line item from a flattened body, numbered
// 1..N in the order they appear.
func TokenizeItems(body string) []LineItem {
	items := make([]LineItem, 0)
	scanner := NewItemScanner(body)
	for {
		item, ok := scanner.Next()
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

// normalizeUnit upper-cases the unit; anything shorter than two letters or
// not made of letters is replaced by UN.
func normalizeUnit(raw string) string {
	unit := strings.ToUpper(strings.TrimSpace(raw))
	if utf8.RuneCountInString(unit) < 2 {
		return defaultUnit
	}
	for _, r := range unit {
		if !unicode.IsLetter(r) {
			return defaultUnit
		}
	}
	return unit
}
