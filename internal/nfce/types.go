package nfce

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies how the raw text was captured.
type Source string

const (
	SourceQR      Source = "qr"
	SourceBarcode Source = "barcode"
	SourceManual  Source = "manual"
	SourceOCR     Source = "ocr"
)

// Valid reports whether s is one of the known capture sources.
func (s Source) Valid() bool {
	switch s {
	case SourceQR, SourceBarcode, SourceManual, SourceOCR:
		return true
	}
	return false
}

// Confidence tags an extracted value as trustworthy or as a best-effort guess.
type Confidence string

const (
	High Confidence = "high"
	Low  Confidence = "low"
)

// RawSubmission is one captured receipt text. It is immutable once created.
type RawSubmission struct {
	source      Source
	rawText     string
	submittedAt time.Time
}

// NewRawSubmission builds a submission. submittedAt is the caller's clock,
// the parser never assigns it.
func NewRawSubmission(source Source, rawText string, submittedAt time.Time) RawSubmission {
	return RawSubmission{source: source, rawText: rawText, submittedAt: submittedAt}
}

func (r RawSubmission) Source() Source         { return r.source }
func (r RawSubmission) RawText() string        { return r.rawText }
func (r RawSubmission) SubmittedAt() time.Time { return r.submittedAt }

// Number is a decimal value extracted from receipt text together with how
// much the extraction can be trusted.
type Number struct {
	Value      decimal.Decimal `json:"value"`
	Confidence Confidence      `json:"confidence"`
}

// Merchant identifies the issuing store.
type Merchant struct {
	CNPJ       string     `json:"cnpj,omitempty"`
	TradeName  string     `json:"trade_name"`
	Confidence Confidence `json:"confidence"`
}

// LineItem is one purchased product line.
type LineItem struct {
	Seq                   int    `json:"seq"`
	Description           string `json:"description"`
	NormalizedDescription string `json:"normalized_description"`
	ProductCode           string `json:"product_code"`
	Quantity              Number `json:"quantity"`
	Unit                  string `json:"unit"`
	UnitPrice             Number `json:"unit_price"`
	TotalPrice            Number `json:"total_price"`
}

// LowConfidence reports whether any numeric field fell back to a default.
func (i LineItem) LowConfidence() bool {
	return i.Quantity.Confidence == Low || i.UnitPrice.Confidence == Low || i.TotalPrice.Confidence == Low
}

// ReconciliationStatus is the advisory result of cross-checking extracted
// items against the totals the receipt declares.
type ReconciliationStatus string

const (
	ReconciliationOK          ReconciliationStatus = "ok"
	ItemCountMismatch         ReconciliationStatus = "item_count_mismatch"
	TotalMismatch             ReconciliationStatus = "total_mismatch"
	BothMismatch              ReconciliationStatus = "both_mismatch"
	ReconciliationUnparseable ReconciliationStatus = "unparseable"
)

// Totals holds the declared and computed summary figures of a receipt.
type Totals struct {
	DeclaredItemCount    *int                 `json:"declared_item_count"`
	DeclaredTotal        *decimal.Decimal     `json:"declared_total"`
	ComputedItemCount    int                  `json:"computed_item_count"`
	ComputedTotal        decimal.Decimal      `json:"computed_total"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status"`
}

// ParsedReceipt is the structured purchase record.
type ParsedReceipt struct {
	Merchant Merchant   `json:"merchant"`
	Items    []LineItem `json:"items"`
	Totals
}

// Status summarizes a parse.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ParseOutcome is everything a single parse produced. It is transient and
// handed to the caller as-is.
type ParseOutcome struct {
	Status  Status         `json:"status"`
	Receipt *ParsedReceipt `json:"receipt,omitempty"`
	Key     *AccessKey     `json:"key,omitempty"`
	Errors  []*ParseError  `json:"errors,omitempty"`
}

// Err returns the first hard failure, or nil.
func (o ParseOutcome) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	return o.Errors[0]
}
