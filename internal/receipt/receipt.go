package receipt

import (
	"time"

	"github.com/zombor/nfce-ingest/internal/nfce"
)

// TriageStatus is where a submission sits in the review workflow
type TriageStatus string

const (
	StatusPending   TriageStatus = "pending"
	StatusReviewed  TriageStatus = "reviewed"
	StatusProcessed TriageStatus = "processed"
	StatusRejected  TriageStatus = "rejected"
)

// Submission is a captured receipt together with its parse outcome
type Submission struct {
	ID      string      `json:"id"`
	Source  nfce.Source `json:"source"`
	RawText string      `json:"raw_text"`
	// AccessKey is only set for keys read with high confidence; it is the
	// dedupe key across submissions.
	AccessKey   string            `json:"access_key,omitempty"`
	Status      TriageStatus      `json:"status"`
	Outcome     nfce.ParseOutcome `json:"outcome"`
	Notes       string            `json:"notes,omitempty"`
	Filename    string            `json:"filename,omitempty"`     // Stored original upload
	ContentType string            `json:"content_type,omitempty"` // Content type of the upload
	SubmittedAt time.Time         `json:"submitted_at"`
	ReviewedAt  *time.Time        `json:"reviewed_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// KeyDigits returns the access key found by the parser, whatever its
// confidence, or an empty string.
func (s *Submission) KeyDigits() string {
	if s.Outcome.Key == nil {
		return ""
	}
	return s.Outcome.Key.Digits
}

// SubmitResult is what the submitting client is told
type SubmitResult struct {
	Submission *Submission `json:"submission"`
	Duplicate  bool        `json:"duplicate"`
	Message    string      `json:"message"`
}
