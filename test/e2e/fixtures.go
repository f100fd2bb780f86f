// Package e2e runs the client against an in-process backend that speaks the
// HTTP API and the processing push channel.
package e2e

import (
	"archive/zip"
	"bytes"
	"html"
	"os"
	"path/filepath"
)

// StudyFileExtensions are the uploadable types that can be generated here.
// PDF is left out; building one with extractable text needs a writer.
var StudyFileExtensions = []string{".txt", ".md", ".html", ".docx"}

// MinimalFile returns the bytes of a small file of type ext containing text.
func MinimalFile(ext, text string) []byte {
	switch ext {
	case ".md":
		return []byte("# Notes\n\n" + text + "\n")
	case ".html":
		return []byte("<html><body><p>" + html.EscapeString(text) + "</p></body></html>")
	case ".docx":
		return minimalDocx(text)
	default:
		return []byte(text)
	}
}

// WriteStudyFile writes a minimal file named name into dir and returns its path.
func WriteStudyFile(dir, name, text string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, MinimalFile(filepath.Ext(name), text), 0o600)
}

func minimalDocx(text string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, body string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`},
		{"word/document.xml", `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
			html.EscapeString(text) + `</w:t></w:r></w:p></w:body></w:document>`},
	}
	for _, p := range parts {
		fw, _ := zw.Create(p.name)
		_, _ = fw.Write([]byte(p.body))
	}
	_ = zw.Close()
	return buf.Bytes()
}
