package nfce

import (
	"strings"
)

// AccessKeyLength is the number of digits in an NF-e/NFC-e access key.
const AccessKeyLength = 44

// AccessKey is the 44-digit identifier printed on every NFC-e.
type AccessKey struct {
	Digits     string     `json:"digits"`
	Confidence Confidence `json:"confidence"`
}

func (k *AccessKey) String() string {
	return k.Digits
}

// CheckDigitValid reports whether the last digit matches the mod-11 check
// digit of the first 43.
func (k *AccessKey) CheckDigitValid() bool {
	return validAccessKey(k.Digits)
}

// KeyComponents is the fixed-position decomposition of an access key.
type KeyComponents struct {
	StateCode    string `json:"state_code"`
	State        string `json:"state,omitempty"`
	YearMonth    string `json:"year_month"`
	CNPJ         string `json:"cnpj"`
	Model        string `json:"model"`
	Series       string `json:"series"`
	Number       string `json:"number"`
	EmissionType string `json:"emission_type"`
	NumericCode  string `json:"numeric_code"`
	CheckDigit   string `json:"check_digit"`
}

// IsNFCe reports whether the key belongs to a consumer receipt (model 65).
func (c KeyComponents) IsNFCe() bool {
	return c.Model == "65"
}

var stateCodes = map[string]string{
	"11": "RO", "12": "AC", "13": "AM", "14": "RR", "15": "PA", "16": "AP", "17": "TO",
	"21": "MA", "22": "PI", "23": "CE", "24": "RN", "25": "PB", "26": "PE", "27": "AL",
	"28": "SE", "29": "BA", "31": "MG", "32": "ES", "33": "RJ", "35": "SP", "41": "PR",
	"42": "SC", "43": "RS", "50": "MS", "51": "MT", "52": "GO", "53": "DF",
}

// Components splits the key into its fields.
func (k *AccessKey) Components() KeyComponents {
	d := k.Digits
	if len(d) != AccessKeyLength {
		return KeyComponents{}
	}
	return KeyComponents{
		StateCode:    d[0:2],
		State:        stateCodes[d[0:2]],
		YearMonth:    d[2:6],
		CNPJ:         d[6:20],
		Model:        d[20:22],
		Series:       d[22:25],
		Number:       d[25:34],
		EmissionType: d[34:35],
		NumericCode:  d[35:43],
		CheckDigit:   d[43:44],
	}
}

// ExtractKey finds the access key in arbitrary text by projecting it onto
// its digits. Exactly 44 digits is a confident key; more than 44 yields the
// first window with low confidence; fewer yields nil.
func ExtractKey(raw string) *AccessKey {
	return extractKey(raw, false)
}

// extractKey implements ExtractKey. With validate set, a bad check digit
// lowers confidence and longer digit runs prefer the first window whose
// check digit holds.
func extractKey(raw string, validate bool) *AccessKey {
	digits := digitsOnly(raw)
	switch {
	case len(digits) < AccessKeyLength:
		return nil
	case len(digits) == AccessKeyLength:
		key := &AccessKey{Digits: digits, Confidence: High}
		if validate && !validAccessKey(digits) {
			key.Confidence = Low
		}
		return key
	}

	window := digits[:AccessKeyLength]
	if validate {
		for i := 0; i+AccessKeyLength <= len(digits); i++ {
			if candidate := digits[i : i+AccessKeyLength]; validAccessKey(candidate) {
				window = candidate
				break
			}
		}
	}
	return &AccessKey{Digits: window, Confidence: Low}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// accessKeyCheckDigit computes the mod-11 check digit over the first 43
// digits, weights 2..9 cycling from the right.
func accessKeyCheckDigit(body string) int {
	sum, weight := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func validAccessKey(digits string) bool {
	if len(digits) != AccessKeyLength {
		return false
	}
	return accessKeyCheckDigit(digits[:43]) == int(digits[43]-'0')
}
