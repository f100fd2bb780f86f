package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// minimalPDF builds a one-page PDF with a correct xref table.
func minimalPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>",
		"<< /Length 0 >>\nstream\n\nendstream",
	}
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func minimalDocx(part, text string, declare bool) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if declare {
		ct, _ := w.Create("[Content_Types].xml")
		_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/` + part + `"/>
</Types>`))
	}
	fw, _ := w.Create(part)
	_, _ = fw.Write([]byte(`<w:document><w:body><w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestInspect_valid(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		ext     string
		pages   int
		words   int
	}{
		{"pdf", minimalPDF(), ".pdf", 1, 0},
		{"docx default part", minimalDocx("word/document.xml", "lecture notes on optics", false), ".docx", 0, 4},
		{"docx declared part", minimalDocx("word/document2.xml", "chapter two", true), ".DOCX", 0, 2},
		{"markdown", []byte("# Title\n\nSome *text* here"), ".md", 0, 5},
		{"html with bom", []byte("\xef\xbb\xbf<p>café</p>"), ".html", 0, 1},
		{"empty text", []byte(""), ".txt", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Inspect(tt.content, tt.ext)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if info.Pages != tt.pages || info.Words != tt.words {
				t.Errorf("Inspect = %+v, want pages=%d words=%d", info, tt.pages, tt.words)
			}
		})
	}
}

func TestInspect_malformed(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		ext     string
	}{
		{"pdf without header", []byte("hello"), ".pdf"},
		{"truncated pdf", minimalPDF()[:40], ".pdf"},
		{"docx not zip", []byte("PK not really"), ".docx"},
		{"docx missing part", minimalDocx("word/other.xml", "x", false), ".docx"},
		{"invalid utf8", []byte("hello\x80world"), ".txt"},
		{"binary in md", []byte("abc\x00def"), ".md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Inspect(tt.content, tt.ext)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Inspect err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestInspect_unsupported(t *testing.T) {
	for _, ext := range []string{".exe", ".xlsx", ""} {
		if _, err := Inspect([]byte("data"), ext); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Inspect(%q) err = %v, want ErrUnsupported", ext, err)
		}
	}
}
