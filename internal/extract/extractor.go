// Package extract inspects document bytes before upload: it checks that the
// content matches the declared type and pulls out enough text to describe it.
package extract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported is returned for extensions with no inspector.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrMalformed is returned when content does not match its extension.
	ErrMalformed = errors.New("malformed document")
)

// Info describes an inspected document.
type Info struct {
	// Pages is the PDF page count; zero for other types.
	Pages int
	// Words is the number of whitespace-separated words in the extracted text.
	Words int
}

// Inspect validates content against ext (with leading dot, e.g. ".pdf").
// Errors wrap ErrUnsupported or ErrMalformed.
func Inspect(content []byte, ext string) (Info, error) {
	var (
		text  string
		pages int
		err   error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		text, pages, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".txt", ".md", ".html", ".htm":
		text, err = extractPlain(content)
	default:
		return Info{}, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Info{Pages: pages, Words: len(strings.Fields(text))}, nil
}
