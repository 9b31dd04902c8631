package receipt

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/nfce-ingest/internal/metrics"
	"github.com/zombor/nfce-ingest/internal/nfce"
	"github.com/zombor/nfce-ingest/internal/scanning"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Messages shown to the submitting client
const (
	messageSuccess   = "Receipt read and totals reconciled"
	messagePartial   = "Receipt received; some data needs review"
	messageFailed    = "Receipt received but no access key or items could be read"
	messageDuplicate = "Receipt was already submitted"
)

// IDGenerator generates unique IDs for submissions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt submission and triage
type Service struct {
	db          DB
	extractor   scanning.Extractor
	storage     Storage
	parser      *nfce.Parser
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor scanning.Extractor, storage Storage, parser *nfce.Parser) *Service {
	return NewServiceWithDeps(db, extractor, storage, parser, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, storage Storage, parser *nfce.Parser, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		parser:      parser,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = filenameUnsafe.ReplaceAllString(base, "")
	base = filenameSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + filenameUnsafe.ReplaceAllString(ext, "")
}

// dedupeKey is the access key used to detect resubmissions. Low confidence
// keys may be an arbitrary digit window and are not trusted for it.
func dedupeKey(outcome nfce.ParseOutcome) string {
	if outcome.Key == nil || outcome.Key.Confidence != nfce.High {
		return ""
	}
	return outcome.Key.Digits
}

func outcomeMessage(outcome nfce.ParseOutcome) string {
	switch outcome.Status {
	case nfce.StatusSuccess:
		return messageSuccess
	case nfce.StatusPartial:
		return messagePartial
	default:
		return messageFailed
	}
}

func (s *Service) parse(source nfce.Source, text string) nfce.ParseOutcome {
	start := time.Now()
	outcome := s.parser.Parse(text)
	metrics.ObserveParse(source, outcome, time.Since(start))
	return outcome
}

// Parse runs the parser on a request without storing anything
func (s *Service) Parse(req SubmitRequest) (nfce.ParseOutcome, error) {
	if err := validateRequest(req); err != nil {
		return nfce.ParseOutcome{}, err
	}
	return s.parse(req.Source, req.RawText), nil
}

// Submit parses a receipt text and stores it for triage. A receipt whose
// access key was already submitted returns the earlier submission.
func (s *Service) Submit(req SubmitRequest) (*SubmitResult, error) {
	return s.submit(s.idGenerator.Generate(), req, "", "")
}

func (s *Service) submit(id string, req SubmitRequest, filename, contentType string) (*SubmitResult, error) {
	if err := validateRequest(req); err != nil {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		return nil, err
	}

	outcome := s.parse(req.Source, req.RawText)
	if err := outcome.Err(); err != nil {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}

	accessKey := dedupeKey(outcome)
	now := s.timeSource.Now()
	submission := &Submission{
		ID:          id,
		Source:      req.Source,
		RawText:     req.RawText,
		AccessKey:   accessKey,
		Status:      StatusPending,
		Outcome:     outcome,
		Filename:    filename,
		ContentType: contentType,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	existing, err := s.db.SaveIfKeyFree(submission)
	if err != nil {
		return nil, fmt.Errorf("saving submission to database: %w", err)
	}
	if existing != nil {
		metrics.Submissions.WithLabelValues("duplicate").Inc()
		slog.Info("Duplicate receipt submitted", "id", existing.ID, "access_key", accessKey)
		return &SubmitResult{Submission: existing, Duplicate: true, Message: messageDuplicate}, nil
	}

	metrics.Submissions.WithLabelValues("created").Inc()
	logAttrs := []any{"id", id, "source", req.Source, "status", outcome.Status}
	if outcome.Receipt != nil {
		logAttrs = append(logAttrs, "reconciliation", outcome.Receipt.ReconciliationStatus, "items", len(outcome.Receipt.Items))
	}
	slog.Info("Receipt submitted", logAttrs...)

	return &SubmitResult{Submission: submission, Message: outcomeMessage(outcome)}, nil
}

// SubmitFile stores an uploaded receipt file, reads its text and submits it
func (s *Service) SubmitFile(filename string, data []byte, contentType string, source nfce.Source) (*SubmitResult, error) {
	if source == "" {
		source = nfce.SourceOCR
	}
	id := s.idGenerator.Generate()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.extractor.ExtractText(data, contentType)
	if err != nil {
		slog.Error("Failed to extract receipt text",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	result, err := s.submit(id, SubmitRequest{Source: source, RawText: text}, savedPath, contentType)
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, err
	}
	if result.Duplicate {
		// The earlier submission keeps its own file
		s.storage.Delete(savedPath)
	}
	return result, nil
}

// Get retrieves a submission by ID
func (s *Service) Get(id string) (*Submission, error) {
	submission, err := s.db.GetSubmission(id)
	if err != nil {
		return nil, fmt.Errorf("getting submission: %w", err)
	}
	return submission, nil
}

// FindByAccessKey returns the submission stored under a 44-digit access key.
// Spaces between the digit groups are ignored.
func (s *Service) FindByAccessKey(key string) (*Submission, error) {
	req := KeyLookup{Key: strings.Join(strings.Fields(key), "")}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	submission, err := s.db.FindByAccessKey(req.Key)
	if err != nil {
		return nil, fmt.Errorf("finding submission by access key: %w", err)
	}
	return submission, nil
}

// List returns one page of submissions matching filter, newest first, and
// the number of matches across all pages
func (s *Service) List(filter ListFilter) ([]*Submission, int, error) {
	if err := validateRequest(filter); err != nil {
		return nil, 0, err
	}

	all, err := s.db.ListSubmissions()
	if err != nil {
		return nil, 0, fmt.Errorf("listing submissions: %w", err)
	}

	matches := make([]*Submission, 0, len(all))
	for _, sub := range all {
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		if filter.Outcome != "" && sub.Outcome.Status != filter.Outcome {
			continue
		}
		if filter.Search != "" && !strings.Contains(sub.KeyDigits(), filter.Search) {
			continue
		}
		matches = append(matches, sub)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].SubmittedAt.Equal(matches[j].SubmittedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].SubmittedAt.After(matches[j].SubmittedAt)
	})

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	start := (page - 1) * limit
	if start >= len(matches) {
		return []*Submission{}, len(matches), nil
	}
	end := min(start+limit, len(matches))
	return matches[start:end], len(matches), nil
}

// UpdateStatus moves a submission through triage
func (s *Service) UpdateStatus(id string, req UpdateRequest) (*Submission, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	submission, err := s.db.GetSubmission(id)
	if err != nil {
		return nil, fmt.Errorf("getting submission: %w", err)
	}

	now := s.timeSource.Now()
	submission.Status = req.Status
	submission.Notes = req.Notes
	submission.UpdatedAt = now
	if req.Status == StatusPending {
		submission.ReviewedAt = nil
	} else {
		submission.ReviewedAt = &now
	}

	if err := s.db.SaveSubmission(submission); err != nil {
		return nil, fmt.Errorf("updating submission: %w", err)
	}

	metrics.TriageUpdates.WithLabelValues(string(req.Status)).Inc()
	slog.Info("Submission triaged", "id", id, "status", req.Status)
	return submission, nil
}

// Reparse runs the parser again over the stored text of a submission
func (s *Service) Reparse(id string) (*Submission, error) {
	submission, err := s.db.GetSubmission(id)
	if err != nil {
		return nil, fmt.Errorf("getting submission: %w", err)
	}

	outcome := s.parse(submission.Source, submission.RawText)
	submission.Outcome = outcome
	submission.AccessKey = dedupeKey(outcome)
	submission.UpdatedAt = s.timeSource.Now()

	existing, err := s.db.SaveIfKeyFree(submission)
	if err != nil {
		return nil, fmt.Errorf("saving reparsed submission: %w", err)
	}
	if existing != nil {
		slog.Warn("Access key already belongs to another submission", "id", id, "other_id", existing.ID)
		submission.AccessKey = ""
		if err := s.db.SaveSubmission(submission); err != nil {
			return nil, fmt.Errorf("saving reparsed submission: %w", err)
		}
	}
	return submission, nil
}

// Delete removes a submission and its file
func (s *Service) Delete(id string) error {
	submission, err := s.db.GetSubmission(id)
	if err != nil {
		return fmt.Errorf("getting submission for deletion: %w", err)
	}

	if submission.Filename != "" {
		if err := s.storage.Delete(submission.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", submission.Filename, "error", err)
		}
	}

	if err := s.db.DeleteSubmission(id); err != nil {
		return fmt.Errorf("deleting submission from database: %w", err)
	}
	return nil
}

// GetFile retrieves the original upload of a submission
func (s *Service) GetFile(id string) ([]byte, string, error) {
	submission, err := s.db.GetSubmission(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting submission: %w", err)
	}
	if submission.Filename == "" {
		return nil, "", fmt.Errorf("%w: submission %s has no file", ErrNotFound, id)
	}

	data, err := s.storage.Get(submission.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting submission file: %w", err)
	}

	return data, submission.ContentType, nil
}
