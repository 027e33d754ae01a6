// Package ticket defines the normalized row shape shared by every
// destination, and the normalization from raw upstream payloads.
package ticket

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DescriptionMaxChars is the truncation length for ticket descriptions,
// measured in characters, not bytes.
const DescriptionMaxChars = 500

// Headers is the canonical column order for every destination.
var Headers = []string{
	"ticket_id",
	"subject",
	"status",
	"priority",
	"requester_id",
	"assignee_id",
	"created_at",
	"updated_at",
	"tags",
	"type",
	"via",
	"url",
	"description",
	"custom_fields",
}

// CustomField is one entry of the upstream's schema-less custom field bag.
type CustomField struct {
	ID    int64
	Value string
}

// Row is the canonical flat representation of one ticket. ID is the merge
// key; at most one Row per ID exists in any persistent dataset.
type Row struct {
	ID           int64
	Subject      string
	Status       string
	Priority     string
	RequesterID  int64
	AssigneeID   int64 // 0 when unassigned
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Tags         []string
	Type         string
	Via          string
	URL          string
	Description  string
	CustomFields []CustomField
}

// Record converts the row to CSV/sheet cell values in Headers order.
func (r Row) Record() []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Subject,
		r.Status,
		r.Priority,
		formatID(r.RequesterID),
		formatID(r.AssigneeID),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
		strings.Join(r.Tags, ", "),
		r.Type,
		r.Via,
		r.URL,
		r.Description,
		EncodeCustomFields(r.CustomFields),
	}
}

// FromRecord parses CSV cell values (in Headers order) back into a Row.
// Used by the merge engine to read a persistent dataset back.
func FromRecord(record []string) (Row, error) {
	if len(record) != len(Headers) {
		return Row{}, fmt.Errorf("record has %d fields, want %d", len(record), len(Headers))
	}

	id, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid ticket_id %q: %w", record[0], err)
	}

	row := Row{
		ID:           id,
		Subject:      record[1],
		Status:       record[2],
		Priority:     record[3],
		RequesterID:  parseID(record[4]),
		AssigneeID:   parseID(record[5]),
		CreatedAt:    parseTime(record[6]),
		UpdatedAt:    parseTime(record[7]),
		Type:         record[9],
		Via:          record[10],
		URL:          record[11],
		Description:  record[12],
		CustomFields: DecodeCustomFields(record[13]),
	}
	if record[8] != "" {
		row.Tags = strings.Split(record[8], ", ")
	}
	return row, nil
}

// EncodeCustomFields serializes custom fields as "id:value|id:value".
// Entries with empty values are skipped, matching the upstream convention
// of null-valued fields on tickets that never set them.
func EncodeCustomFields(fields []CustomField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d:%s", f.ID, f.Value))
	}
	return strings.Join(parts, "|")
}

// DecodeCustomFields parses the "id:value|id:value" encoding.
func DecodeCustomFields(s string) []CustomField {
	if s == "" {
		return nil
	}
	var fields []CustomField
	for _, part := range strings.Split(s, "|") {
		id, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		fields = append(fields, CustomField{ID: n, Value: value})
	}
	return fields
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func parseID(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
