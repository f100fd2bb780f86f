package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

func extractPDF(content []byte) (text string, pages int, err error) {
	// The reader panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return "", 0, fmt.Errorf("missing %%PDF header")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return "", 0, fmt.Errorf("PDF has no pages")
	}
	var buf bytes.Buffer
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		// Pages without a text layer still count.
		if t, ok := pageText(page); ok {
			buf.WriteString(t)
			buf.WriteByte('\n')
		}
	}
	return buf.String(), numPages, nil
}

func pageText(page pdf.Page) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			text, ok = "", false
		}
	}()
	t, err := page.GetPlainText(nil)
	return t, err == nil
}
