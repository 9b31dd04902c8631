// Package nfce turns the text of a Brazilian consumer e-receipt (NFC-e),
// whether OCR output, a decoded QR or barcode payload or pasted text, into
// a structured purchase record and its 44-digit access key.
//
// Parsing is pure: no I/O, no shared mutable state, safe for concurrent use.
package nfce

// DefaultMaxInputChars bounds the size of a single parse.
const DefaultMaxInputChars = 100_000

// Config tunes a Parser.
type Config struct {
	// MaxInputChars is the rune limit above which input is rejected.
	// Zero or negative means DefaultMaxInputChars.
	MaxInputChars int
	// ValidateCheckDigit enables mod-11 check digit validation of the
	// access key. A failing key is kept with low confidence.
	ValidateCheckDigit bool
}

// DefaultConfig returns the configuration used by Parse.
func DefaultConfig() Config {
	return Config{MaxInputChars: DefaultMaxInputChars}
}

// Parser assembles key, merchant, items and reconciliation into a
// ParseOutcome.
type Parser struct {
	cfg Config
}

// NewParser creates a Parser.
func NewParser(cfg Config) *Parser {
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	return &Parser{cfg: cfg}
}

// Config returns the parser's effective configuration.
func (p *Parser) Config() Config {
	return p.cfg
}

// Parse parses text with the default configuration.
func Parse(text string) ParseOutcome {
	return NewParser(DefaultConfig()).Parse(text)
}

// ParseSubmission parses the raw text of a submission. The capture source
// does not change how text is read.
func (p *Parser) ParseSubmission(sub RawSubmission) ParseOutcome {
	return p.Parse(sub.RawText())
}

// Parse never returns an error: structural failures are
// reported in ParseOutcome.Errors with status failed, everything else is
// best effort.
func (p *Parser) Parse(text string) ParseOutcome {
	if perr := checkInput(text, p.cfg.MaxInputChars); perr != nil {
		return ParseOutcome{Status: StatusFailed, Errors: []*ParseError{perr}}
	}

	original := canonicalText(text)
	body := NormalizeBody(original)

	key := extractKey(original, p.cfg.ValidateCheckDigit)
	items := TokenizeItems(body)
	receipt := &ParsedReceipt{
		Merchant: ExtractMerchant(original),
		Items:    items,
		Totals:   Reconcile(body, items),
	}

	return ParseOutcome{
		Status:  outcomeStatus(key, receipt),
		Receipt: receipt,
		Key:     key,
	}
}

func outcomeStatus(key *AccessKey, receipt *ParsedReceipt) Status {
	switch {
	case key != nil && receipt.ReconciliationStatus == ReconciliationOK:
		return StatusSuccess
	case key != nil || len(receipt.Items) > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
