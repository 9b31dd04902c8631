package receipt

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zombor/nfce-ingest/internal/nfce"
)

// SubmitRequest is a receipt text sent by a client
type SubmitRequest struct {
	Source  nfce.Source `json:"source" validate:"required,oneof=qr barcode manual ocr"`
	RawText string      `json:"raw_text"`
}

// UpdateRequest moves a submission through triage
type UpdateRequest struct {
	Status TriageStatus `json:"status" validate:"required,oneof=pending reviewed processed rejected"`
	Notes  string       `json:"notes" validate:"max=255"`
}

// ListFilter narrows and pages the submission list
type ListFilter struct {
	Status  TriageStatus `json:"status" validate:"omitempty,oneof=pending reviewed processed rejected"`
	Outcome nfce.Status  `json:"outcome" validate:"omitempty,oneof=success partial failed"`
	Search  string       `json:"search" validate:"max=44"`
	Page    int          `json:"page" validate:"gte=0"`
	Limit   int          `json:"limit" validate:"gte=0"`
}

// KeyLookup is a request for the submission stored under an access key
type KeyLookup struct {
	Key string `json:"key" validate:"numeric,len=44"`
}

// ValidationError carries the failing fields of a request, keyed by their
// JSON name
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+" "+tag)
	}
	sort.Strings(parts)
	return "invalid request: " + strings.Join(parts, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks req against its struct tags
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
