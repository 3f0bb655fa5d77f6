// Package document extracts plain text from uploaded study documents.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxPromptRunes bounds how much document text is forwarded to the model.
const MaxPromptRunes = 60000

// ErrNotPDF is returned when the payload does not start with a PDF header.
var ErrNotPDF = errors.New("not a PDF document")

// IsPDF reports whether b looks like a PDF file.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

// ExtractText returns the plain text of every page, separated by blank
// lines. Pages without a content stream are skipped.
func ExtractText(b []byte) (text string, err error) {
	if !IsPDF(b) {
		return "", ErrNotPDF
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
