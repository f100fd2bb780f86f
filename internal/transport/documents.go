package transport

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// FilePart is one file of a multipart upload.
type FilePart struct {
	Name    string
	Content io.Reader
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var out models.HealthResponse
	if err := c.getJSON(ctx, "health check", "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadDocuments sends all files in one multipart request to POST /api/v1/documents/upload.
func (c *Client) UploadDocuments(ctx context.Context, files []FilePart) (*models.UploadResponse, error) {
	const op = "upload documents"
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, &models.TransportError{Op: op, Message: "build multipart body", Err: err}
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, &models.TransportError{Op: op, Message: "read " + f.Name, Err: err}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &models.TransportError{Op: op, Message: "build multipart body", Err: err}
	}

	var out models.UploadResponse
	if err := c.do(ctx, op, http.MethodPost, "/api/v1/documents/upload", &body, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments calls GET /api/v1/database/documents with the filter as query parameters.
func (c *Client) ListDocuments(ctx context.Context, filter models.ListFilter) (*models.DocumentList, error) {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("search", filter.Search)
	set("status", string(filter.Status))
	set("file_type", filter.FileType)
	set("sort_by", filter.SortBy)
	set("sort_order", filter.SortOrder)
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/v1/database/documents"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out models.DocumentList
	if err := c.getJSON(ctx, "list documents", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument calls DELETE /api/v1/database/documents/{id}.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.delete(ctx, "delete document", "/api/v1/database/documents/"+pathID(id))
}

// ReindexDocument calls POST /api/v1/database/documents/{id}/reindex.
func (c *Client) ReindexDocument(ctx context.Context, id string) (*models.ReindexResponse, error) {
	var out models.ReindexResponse
	if err := c.postJSON(ctx, "reindex document", "/api/v1/database/documents/"+pathID(id)+"/reindex", nil, &out); err != nil {
		return nil, err
	}
	if out.DocumentID == "" {
		out.DocumentID = id
	}
	return &out, nil
}

// DocumentStatus calls GET /api/v1/documents/status/{task_id}.
func (c *Client) DocumentStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	var out models.TaskStatus
	if err := c.getJSON(ctx, "document status", "/api/v1/documents/status/"+pathID(taskID), &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		out.TaskID = taskID
	}
	return &out, nil
}
