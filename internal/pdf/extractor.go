// Package pdfutil extracts plain text from PDF documents for backends that
// cannot accept binary attachments.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractText reads PDF bytes and returns the concatenated page text.
// Empty pages are skipped.
func ExtractText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// IsPDF reports whether a file name selects the binary analysis path.
func IsPDF(fileName string) bool {
	return strings.HasSuffix(strings.ToLower(fileName), ".pdf")
}
