package extract

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

// extractPlain accepts UTF-8 text without NUL bytes, which covers txt, md and html.
func extractPlain(content []byte) (string, error) {
	if bytes.IndexByte(content, 0) >= 0 {
		return "", errors.New("binary content in text file")
	}
	if !utf8.Valid(content) {
		return "", errors.New("text is not valid UTF-8")
	}
	return string(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))), nil
}
