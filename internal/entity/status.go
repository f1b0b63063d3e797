package entity

import "fmt"

// Status is the worker status reported back to the upstream registry.
type Status string

const (
	StatusApproved Status = "approved"
	StatusBlocked  Status = "blocked"
	StatusFailed   Status = "failed"
)

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusApproved, StatusBlocked, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

func (s Status) String() string {
	return string(s)
}
