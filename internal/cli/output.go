// Package cli renders client state for the studyrag command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// WriteConversations writes a conversation list.
func WriteConversations(w io.Writer, convs []models.Conversation, format OutputFormat) error {
	if format == OutputJSON {
		if convs == nil {
			convs = []models.Conversation{}
		}
		return writeJSON(w, convs)
	}
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return nil
	}
	for _, c := range convs {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s  %s  [%d messages, %s]\n", c.ID, title, c.MessageCount, formatTime(c.SortKey()))
		if c.LastMessagePreview != "" {
			fmt.Fprintf(w, "    %s\n", utils.Truncate(c.LastMessagePreview, 80))
		}
	}
	return nil
}

// WriteMessages writes a conversation transcript with sources under each answer.
func WriteMessages(w io.Writer, msgs []models.Message, format OutputFormat) error {
	if format == OutputJSON {
		if msgs == nil {
			msgs = []models.Message{}
		}
		return writeJSON(w, msgs)
	}
	for _, m := range msgs {
		writeMessage(w, m)
	}
	return nil
}

func writeMessage(w io.Writer, m models.Message) {
	fmt.Fprintln(w, rule)
	label := string(m.Role)
	if m.State == models.MessageFailed {
		label += " (not sent)"
	}
	fmt.Fprintf(w, "[%s] %s\n\n%s\n", label, formatTime(m.CreatedAt), m.Content)
	if len(m.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, s := range m.Sources {
			fmt.Fprintf(w, "  %d. %s (%.2f)\n", i+1, s.Filename, s.Score)
			if s.Excerpt != "" {
				fmt.Fprintf(w, "     %s\n", utils.Preview(s.Excerpt, 120))
			}
		}
	}
	fmt.Fprintln(w)
}

// WriteReply writes a single assistant reply.
func WriteReply(w io.Writer, m *models.Message, conversationID string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			ConversationID string          `json:"conversation_id"`
			Message        *models.Message `json:"message"`
		}{conversationID, m})
	}
	writeMessage(w, *m)
	fmt.Fprintf(w, "conversation: %s\n", conversationID)
	return nil
}

// WriteDocuments writes one page of the document list.
func WriteDocuments(w io.Writer, docs []models.Document, total int, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []models.Document{}
		}
		return writeJSON(w, struct {
			Documents []models.Document `json:"documents"`
			Total     int               `json:"total"`
		}{docs, total})
	}
	fmt.Fprintf(w, "%d of %d documents\n", len(docs), total)
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-40s  %-10s  %8s", d.ID, utils.Truncate(d.Filename, 40), d.Status, formatSize(d.Size))
		if d.Status == models.StatusCompleted {
			fmt.Fprintf(w, "  %d chunks", d.ChunkCount)
		}
		if d.ErrorMessage != "" {
			fmt.Fprintf(w, "  error: %s", d.ErrorMessage)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteUploads writes upload progress records and validation rejections.
func WriteUploads(w io.Writer, recs []models.UploadProgress, rejected []*models.ValidationError, format OutputFormat) error {
	if format == OutputJSON {
		type rejection struct {
			Filename string `json:"filename"`
			Reason   string `json:"reason"`
		}
		out := struct {
			Uploads  []models.UploadProgress `json:"uploads"`
			Rejected []rejection             `json:"rejected"`
		}{Uploads: recs, Rejected: []rejection{}}
		if out.Uploads == nil {
			out.Uploads = []models.UploadProgress{}
		}
		for _, r := range rejected {
			out.Rejected = append(out.Rejected, rejection{r.Filename, r.Reason})
		}
		return writeJSON(w, out)
	}
	for _, r := range rejected {
		fmt.Fprintf(w, "rejected   %s: %s\n", r.Filename, r.Reason)
	}
	for _, r := range recs {
		WriteProgressLine(w, r)
	}
	return nil
}

// WriteProgressLine writes one progress record as a single line.
func WriteProgressLine(w io.Writer, r models.UploadProgress) {
	fmt.Fprintf(w, "%-10s %3d%%  %s", r.Status, r.Progress, r.Filename)
	switch {
	case r.ErrorDetails != "":
		fmt.Fprintf(w, "  error: %s", r.ErrorDetails)
	case r.Message != "":
		fmt.Fprintf(w, "  %s", r.Message)
	}
	fmt.Fprintln(w)
}

// WriteNotifications writes pending notifications, one per line.
func WriteNotifications(w io.Writer, notes []models.Notification) {
	for _, n := range notes {
		if n.Detail == "" {
			fmt.Fprintf(w, "%s: %s\n", n.Level, n.Title)
			continue
		}
		fmt.Fprintf(w, "%s: %s: %s\n", n.Level, n.Title, n.Detail)
	}
}

func formatSize(n int64) string {
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

// WriteHealth writes the backend health check result.
func WriteHealth(w io.Writer, baseURL string, h *models.HealthResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			URL    string `json:"url"`
			Status string `json:"status"`
		}{baseURL, h.Status})
	}
	fmt.Fprintf(w, "backend %s: %s\n", baseURL, h.Status)
	return nil
}
