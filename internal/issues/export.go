package issues

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ContentType returns the MIME type served for f.
func (f ExportFormat) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// ExportFilename names an export produced at now.
func ExportFilename(f ExportFormat, now time.Time) string {
	return "issues-" + now.UTC().Format("20060102-150405") + "." + string(f)
}

var csvHeader = []string{
	"ID", "Title", "Description", "Status", "Priority",
	"Created By", "Creator Email", "Attachment", "Created At", "Updated At", "Resolved At",
}

// WriteCSV writes rows as CSV with a header line.
func WriteCSV(w io.Writer, rows []View) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, v := range rows {
		if err := writer.Write([]string{
			strconv.FormatInt(v.ID, 10),
			csvSafe(v.Title),
			csvSafe(v.Description),
			string(v.Status),
			string(v.Priority),
			csvSafe(v.CreatorName),
			csvSafe(v.CreatorEmail),
			deref(v.Attachment),
			formatTime(&v.CreatedAt),
			formatTime(&v.UpdatedAt),
			formatTime(v.ResolvedAt),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type jsonExport struct {
	ExportedAt time.Time `json:"exportedAt"`
	Count      int       `json:"count"`
	Issues     []View    `json:"issues"`
}

// WriteJSON writes rows as an indented JSON document.
func WriteJSON(w io.Writer, rows []View, now time.Time) error {
	if rows == nil {
		rows = []View{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonExport{ExportedAt: now.UTC(), Count: len(rows), Issues: rows})
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// csvSafe stops spreadsheet applications from evaluating user text as a formula.
func csvSafe(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
