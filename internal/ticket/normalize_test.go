package ticket

import (
	"strings"
	"testing"
	"time"

	"ticketsync/internal/errors"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

func sampleRaw() RawTicket {
	return RawTicket{
		ID:          int64Ptr(42),
		Subject:     "Printer on fire",
		Status:      "open",
		Priority:    strPtr("urgent"),
		RequesterID: int64Ptr(1001),
		AssigneeID:  int64Ptr(2002),
		CreatedAt:   "2023-12-01T10:30:00Z",
		UpdatedAt:   "2023-12-02T08:15:00Z",
		Tags:        []string{"hardware", "urgent", "office"},
		Type:        strPtr("incident"),
		Via:         &RawVia{Channel: "email"},
		URL:         "https://acme.zendesk.com/api/v2/tickets/42.json",
		Description: "The printer caught fire again.",
		CustomFields: []RawCustomField{
			{ID: 360001, Value: "warranty"},
			{ID: 360002, Value: nil},
			{ID: 360003, Value: float64(7)},
			{ID: 360004, Value: true},
		},
	}
}

func TestNormalize(t *testing.T) {
	row, err := Normalize(sampleRaw())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if row.ID != 42 {
		t.Errorf("ID = %d, want 42", row.ID)
	}
	if row.Priority != "urgent" {
		t.Errorf("Priority = %q, want urgent", row.Priority)
	}
	if row.Via != "email" {
		t.Errorf("Via = %q, want email", row.Via)
	}
	if !row.CreatedAt.Equal(time.Date(2023, 12, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", row.CreatedAt)
	}
	// Tag order must match upstream order.
	if len(row.Tags) != 3 || row.Tags[0] != "hardware" || row.Tags[2] != "office" {
		t.Errorf("Tags = %v", row.Tags)
	}
}

func TestNormalize_MissingID(t *testing.T) {
	raw := sampleRaw()
	raw.ID = nil

	_, err := Normalize(raw)
	if !errors.Is(err, errors.ErrMalformedRecord) {
		t.Errorf("Normalize should return ErrMalformedRecord, got: %v", err)
	}
}

func TestNormalize_MissingOptionalFields(t *testing.T) {
	raw := RawTicket{ID: int64Ptr(7)}

	row, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if row.Priority != "" || row.Type != "" || row.Via != "" {
		t.Errorf("optional fields should be empty: %+v", row)
	}
	if row.AssigneeID != 0 {
		t.Errorf("AssigneeID = %d, want 0", row.AssigneeID)
	}
	if len(row.Tags) != 0 {
		t.Errorf("Tags = %v, want empty", row.Tags)
	}
}

func TestNormalize_DescriptionTruncation(t *testing.T) {
	raw := sampleRaw()
	raw.Description = strings.Repeat("a", 1200)

	row, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len([]rune(row.Description)) != DescriptionMaxChars {
		t.Errorf("Description length = %d, want %d", len([]rune(row.Description)), DescriptionMaxChars)
	}
	if row.Description != strings.Repeat("a", 500) {
		t.Error("Description should be the first 500 characters of the source")
	}
}

func TestNormalize_DescriptionTruncation_Multibyte(t *testing.T) {
	// 600 two-byte characters: truncation counts characters, not bytes.
	raw := sampleRaw()
	raw.Description = strings.Repeat("é", 600)

	row, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if got := len([]rune(row.Description)); got != DescriptionMaxChars {
		t.Errorf("Description rune length = %d, want %d", got, DescriptionMaxChars)
	}
	if row.Description != strings.Repeat("é", 500) {
		t.Error("multibyte description should keep the first 500 characters intact")
	}
}

func TestNormalize_ShortDescriptionUntouched(t *testing.T) {
	row, err := Normalize(sampleRaw())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if row.Description != "The printer caught fire again." {
		t.Errorf("Description = %q", row.Description)
	}
}

func TestEncodeCustomFields(t *testing.T) {
	row, err := Normalize(sampleRaw())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// Nil-valued field 360002 is skipped.
	want := "360001:warranty|360003:7|360004:true"
	if got := EncodeCustomFields(row.CustomFields); got != want {
		t.Errorf("EncodeCustomFields = %q, want %q", got, want)
	}
}

func TestCustomFields_RoundTrip(t *testing.T) {
	fields := []CustomField{
		{ID: 100, Value: "alpha"},
		{ID: 200, Value: "beta gamma"},
	}

	decoded := DecodeCustomFields(EncodeCustomFields(fields))
	if len(decoded) != 2 {
		t.Fatalf("decoded %d fields, want 2", len(decoded))
	}
	if decoded[0] != fields[0] || decoded[1] != fields[1] {
		t.Errorf("round trip mismatch: %v", decoded)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	row, err := Normalize(sampleRaw())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	record := row.Record()
	if len(record) != len(Headers) {
		t.Fatalf("Record has %d fields, want %d", len(record), len(Headers))
	}

	back, err := FromRecord(record)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}

	if back.ID != row.ID || back.Subject != row.Subject || back.Via != row.Via {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if !back.UpdatedAt.Equal(row.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", back.UpdatedAt, row.UpdatedAt)
	}
	if len(back.Tags) != len(row.Tags) {
		t.Errorf("Tags = %v, want %v", back.Tags, row.Tags)
	}
}

func TestFromRecord_BadID(t *testing.T) {
	record := make([]string, len(Headers))
	record[0] = "not-a-number"

	if _, err := FromRecord(record); err == nil {
		t.Error("FromRecord should fail on a non-numeric ticket_id")
	}
}
