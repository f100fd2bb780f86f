package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	defaultDocxPart  = "word/document.xml"
	contentTypesPart = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

	// Override elements may list PartName and ContentType in either order.
	mainPartPatterns = []*regexp.Regexp{
		regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"`),
		regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]+PartName="([^"]+)"`),
	}
)

// mainDocxPart returns the main document part named in [Content_Types].xml,
// or "" when the package does not declare one.
func mainDocxPart(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
		_ = rc.Close()
		if err != nil {
			return ""
		}
		for _, re := range mainPartPatterns {
			if m := re.FindSubmatch(data); m != nil {
				return strings.TrimPrefix(string(m[1]), "/")
			}
		}
		return ""
	}
	return ""
}

// extractDOCX returns the text of the <w:t> runs of the main document part.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip archive: %w", err)
	}

	docPath := mainDocxPart(zr)
	if docPath == "" {
		docPath = defaultDocxPart
	}

	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		var b strings.Builder
		for _, m := range wtTag.FindAllSubmatch(buf.Bytes(), -1) {
			b.Write(m[1])
			b.WriteByte(' ')
		}
		return strings.TrimSpace(b.String()), nil
	}
	return "", fmt.Errorf("%s not found", docPath)
}
