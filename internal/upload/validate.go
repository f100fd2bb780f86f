package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lumosity23/studyRAG-sub001/internal/extract"
	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// File is one file selected for upload.
type File struct {
	Name string
	// Size is the on-disk size; it may be set without Data when the file was
	// too large to read.
	Size int64
	Data []byte
}

func (f File) size() int64 {
	if n := int64(len(f.Data)); n > f.Size {
		return n
	}
	return f.Size
}

// LoadFile reads path. Files larger than maxSize are not read; the returned
// File carries only the name and size so validation can reject it.
func LoadFile(path string, maxSize int64) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	f := File{Name: filepath.Base(path), Size: info.Size()}
	if maxSize > 0 && info.Size() > maxSize {
		return f, nil
	}
	f.Data, err = os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return f, nil
}

// Validator checks files before any network call.
type Validator struct {
	extensions map[string]bool
	maxSize    int64
}

// NewValidator accepts the given extensions (with or without leading dot)
// and files up to maxSize bytes; maxSize <= 0 disables the size check.
func NewValidator(extensions []string, maxSize int64) *Validator {
	v := &Validator{extensions: make(map[string]bool, len(extensions)), maxSize: maxSize}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		v.extensions[ext] = true
	}
	return v
}

// Accepts reports whether name has a supported extension.
func (v *Validator) Accepts(name string) bool {
	return v.extensions[strings.ToLower(filepath.Ext(name))]
}

// Validate returns a *models.ValidationError describing why f cannot be uploaded.
func (v *Validator) Validate(f File) error {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if !v.extensions[ext] {
		if ext == "" {
			return &models.ValidationError{Filename: f.Name, Reason: "file has no extension"}
		}
		return &models.ValidationError{Filename: f.Name, Reason: fmt.Sprintf("unsupported file type %s", ext)}
	}
	size := f.size()
	if size == 0 {
		return &models.ValidationError{Filename: f.Name, Reason: "file is empty"}
	}
	if v.maxSize > 0 && size > v.maxSize {
		return &models.ValidationError{Filename: f.Name, Reason: fmt.Sprintf("file is %s, limit is %s", formatBytes(size), formatBytes(v.maxSize))}
	}
	if _, err := extract.Inspect(f.Data, ext); err != nil {
		reason := err.Error()
		if errors.Is(err, extract.ErrMalformed) {
			reason = "content does not match " + ext + ": " + strings.TrimPrefix(reason, extract.ErrMalformed.Error()+": ")
		}
		return &models.ValidationError{Filename: f.Name, Reason: reason}
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
