package scanning

import (
	"strings"
)

// cleanExtractedText tidies text coming out of a file: byte order mark,
// form feeds between PDF pages and trailing spaces on each line. Line
// breaks are kept since the parser reads the header line by line.
func cleanExtractedText(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
