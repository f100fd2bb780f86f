package models

import "fmt"

// Sort orders accepted by the document list endpoint.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilter is the query for GET /api/v1/database/documents.
type ListFilter struct {
	Search    string         `json:"search,omitempty"`
	Status    DocumentStatus `json:"status,omitempty"`
	FileType  string         `json:"file_type,omitempty"`
	SortBy    string         `json:"sort_by,omitempty"`
	SortOrder string         `json:"sort_order,omitempty"`
	Page      int            `json:"page,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

var sortFields = map[string]bool{
	"":            true,
	"upload_date": true,
	"filename":    true,
	"file_size":   true,
	"chunk_count": true,
}

// Validate checks the filter and fills defaults: page 1, limit 20 (capped at 100), descending order.
func (f *ListFilter) Validate() error {
	if f.Status != "" && f.Status.Rank() < 0 {
		return fmt.Errorf("unknown status filter %q", f.Status)
	}
	if !sortFields[f.SortBy] {
		return fmt.Errorf("unknown sort field %q", f.SortBy)
	}
	switch f.SortOrder {
	case "":
		f.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("sort order must be %q or %q", SortAsc, SortDesc)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return nil
}
