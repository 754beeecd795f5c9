package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StudentProfile is the identity record a plan export is built around.
type StudentProfile struct {
	SchoolID    string            `db:"school_id" json:"school_id"`
	Name        string            `db:"name" json:"name"`
	Supervisor  string            `db:"supervisor" json:"supervisor"`
	Grade       string            `db:"grade" json:"grade"`
	ClassID     string            `db:"class_id" json:"class_id"`
	PrevClasses EnrollmentHistory `db:"prev_classes" json:"prev_classes"`
}

// EnrollmentEntry records one class the student was enrolled in.
type EnrollmentEntry struct {
	Term      string `json:"term"`
	ClassName string `json:"cname"`
	ClassID   string `json:"cid"`
}

// EnrollmentHistory is the ordered list of prior class enrollments, oldest
// first. It is stored as JSON text on the profile row.
type EnrollmentHistory []EnrollmentEntry

// ClassIDs returns the class identifiers in enrollment order.
func (h EnrollmentHistory) ClassIDs() []string {
	ids := make([]string, 0, len(h))
	for _, entry := range h {
		ids = append(ids, entry.ClassID)
	}
	return ids
}

// Value marshals the history for persistence.
func (h EnrollmentHistory) Value() (driver.Value, error) {
	if h == nil {
		h = EnrollmentHistory{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal enrollment history: %w", err)
	}
	return string(data), nil
}

// Scan parses the stored history. Both a plain JSON array and the legacy
// {"data": ["<entry json>", ...]} envelope are accepted.
func (h *EnrollmentHistory) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for EnrollmentHistory", value)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*h = nil
		return nil
	}

	var entries []EnrollmentEntry
	if strings.HasPrefix(trimmed, "{") {
		parsed, err := parseLegacyHistory([]byte(trimmed))
		if err != nil {
			return err
		}
		entries = parsed
	} else if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return fmt.Errorf("unmarshal enrollment history: %w", err)
	}

	for i, entry := range entries {
		if strings.TrimSpace(entry.ClassID) == "" {
			return fmt.Errorf("enrollment history entry %d has no class id", i)
		}
	}
	*h = entries
	return nil
}

func parseLegacyHistory(data []byte) ([]EnrollmentEntry, error) {
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal enrollment history: %w", err)
	}
	entries := make([]EnrollmentEntry, 0, len(envelope.Data))
	for i, raw := range envelope.Data {
		// entries were stored as JSON strings holding an object
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err == nil {
			raw = json.RawMessage(encoded)
		}
		var entry EnrollmentEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal enrollment history entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
