package ticket

import (
	"encoding/json"
	"fmt"
	"time"

	"ticketsync/internal/errors"
)

// RawTicket is the decode target for one upstream ticket payload. Optional
// fields are pointers so that absent and zero values stay distinguishable;
// the custom field bag is schema-less and carried as-is.
type RawTicket struct {
	ID           *int64           `json:"id"`
	Subject      string           `json:"subject"`
	Status       string           `json:"status"`
	Priority     *string          `json:"priority"`
	RequesterID  *int64           `json:"requester_id"`
	AssigneeID   *int64           `json:"assignee_id"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
	Tags         []string         `json:"tags"`
	Type         *string          `json:"type"`
	Via          *RawVia          `json:"via"`
	URL          string           `json:"url"`
	Description  string           `json:"description"`
	CustomFields []RawCustomField `json:"custom_fields"`
}

// RawVia carries the upstream "via" source object.
type RawVia struct {
	Channel string `json:"channel"`
}

// RawCustomField is one upstream custom field entry. Value is free-form:
// string, number, bool, or null depending on the field definition.
type RawCustomField struct {
	ID    int64 `json:"id"`
	Value any   `json:"value"`
}

// Normalize maps a raw upstream ticket into a flat Row. It is total over
// optional fields (missing values become zero values); a ticket without an
// id is malformed and must be skipped by the caller, never aborting the
// batch.
func Normalize(raw RawTicket) (Row, error) {
	if raw.ID == nil {
		return Row{}, errors.NewMalformedRecord("ticket is missing its id")
	}

	row := Row{
		ID:          *raw.ID,
		Subject:     raw.Subject,
		Status:      raw.Status,
		CreatedAt:   parseUpstreamTime(raw.CreatedAt),
		UpdatedAt:   parseUpstreamTime(raw.UpdatedAt),
		Tags:        raw.Tags,
		URL:         raw.URL,
		Description: truncate(raw.Description, DescriptionMaxChars),
	}
	if raw.Priority != nil {
		row.Priority = *raw.Priority
	}
	if raw.RequesterID != nil {
		row.RequesterID = *raw.RequesterID
	}
	if raw.AssigneeID != nil {
		row.AssigneeID = *raw.AssigneeID
	}
	if raw.Type != nil {
		row.Type = *raw.Type
	}
	if raw.Via != nil {
		row.Via = raw.Via.Channel
	}
	for _, cf := range raw.CustomFields {
		row.CustomFields = append(row.CustomFields, CustomField{
			ID:    cf.ID,
			Value: customFieldValue(cf.Value),
		})
	}

	return row, nil
}

// truncate returns the first max characters of s, counted in runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// customFieldValue renders a free-form custom field value as a cell string.
func customFieldValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers decode as float64; render integers without a decimal point.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// parseUpstreamTime parses the upstream ISO-8601 timestamp format
// ("2023-12-01T10:30:00Z"). Unparsable values become the zero time.
func parseUpstreamTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
