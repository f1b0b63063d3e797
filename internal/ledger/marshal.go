package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Times are stored as RFC 3339 TEXT so the fixed offset of validity windows
// survives a round trip.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func marshalImageRefs(refs map[string]string) (string, error) {
	if len(refs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal image refs: %w", err)
	}
	return string(data), nil
}

func unmarshalImageRefs(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var refs map[string]string
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal image refs: %w", err)
	}
	return refs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
