package scanning

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/text/encoding/charmap"
)

// pdfText concatenates the text layer of every page of a PDF
func pdfText(pdfData []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("reading text of PDF page %d: %w", page+1, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	if strings.TrimSpace(b.String()) == "" {
		// Scanned PDFs are images only
		return "", ErrNoText
	}
	return b.String(), nil
}

// isPDF checks the magic bytes of a PDF document
func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// parseContentType normalizes the media type and extracts the charset
func parseContentType(contentType string) (string, string) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return "text/plain", ""
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType, ""
	}
	return mediaType, strings.ToLower(params["charset"])
}

// sniffContentType guesses the type of an upload sent without a useful one
func sniffContentType(data []byte) string {
	mediaType, _ := parseContentType(http.DetectContentType(data))
	return mediaType
}

// isTextType reports whether the media type carries plain text
func isTextType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/")
}

// charsetDecoders maps charset labels seen on receipt exports to decoders
var charsetDecoders = map[string]*charmap.Charmap{
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
}

// decodeText converts data to UTF-8 according to charset. UTF-8 and unknown
// charsets are passed through untouched so invalid bytes reach the parser.
func decodeText(data []byte, charset string) (string, error) {
	cm, ok := charsetDecoders[charset]
	if !ok {
		return string(data), nil
	}
	out, err := cm.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding %s text: %w", charset, err)
	}
	return string(out), nil
}
