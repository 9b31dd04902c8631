package scanning

import "errors"

var (
	// ErrUnsupported is returned for content types that carry no text, such as
	// photos of receipts.
	ErrUnsupported = errors.New("unsupported content type")
	// ErrNoText is returned when a document has no extractable text layer.
	ErrNoText = errors.New("document has no text")
)

// Extractor defines the interface for turning an uploaded receipt file into
// the text the parser reads
type Extractor interface {
	// ExtractText returns the receipt text contained in data
	ExtractText(data []byte, contentType string) (string, error)
}

// TextExtractor reads plain text and the text layer of PDF receipts
type TextExtractor struct{}

// NewTextExtractor creates a new TextExtractor
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// ExtractText implements Extractor
func (e *TextExtractor) ExtractText(data []byte, contentType string) (string, error) {
	mediaType, charset := parseContentType(contentType)
	if mediaType == "application/octet-stream" {
		mediaType = sniffContentType(data)
	}

	switch {
	case mediaType == "application/pdf" || isPDF(data):
		text, err := pdfText(data)
		if err != nil {
			return "", err
		}
		return cleanExtractedText(text), nil
	case isTextType(mediaType):
		text, err := decodeText(data, charset)
		if err != nil {
			return "", err
		}
		return cleanExtractedText(text), nil
	default:
		return "", ErrUnsupported
	}
}
