package entity

import (
	"strings"
	"time"
)

// NationalKeyPrefix prefixes ledger keys derived from a national ID when an
// event carries no external ID (legacy bulk payloads).
const NationalKeyPrefix = "national:"

// Contact holds optional contact details for a person.
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Record is the canonical representation of one person extracted from an event.
type Record struct {
	ExternalID    string    `json:"external_id"`
	NationalID    string    `json:"national_id,omitempty"`
	DisplayName   string    `json:"display_name"`
	Contact       Contact   `json:"contact"`
	UnitLabel     string    `json:"unit_label,omitempty"`
	FaceImageRef  string    `json:"face_image_ref,omitempty"`
	IDImageRef    string    `json:"id_image_ref,omitempty"`
	Blocked       bool      `json:"blocked"`
	BlockedReason string    `json:"blocked_reason,omitempty"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`

	// FaceImagePath and IDImagePath are local references filled in by the
	// engine from the image resolver. They are never part of the wire payload.
	FaceImagePath string `json:"-"`
	IDImagePath   string `json:"-"`
}

// Key returns the ledger key for the record: the external ID when present,
// otherwise a key derived from the national ID.
func (r Record) Key() string {
	if r.ExternalID != "" {
		return r.ExternalID
	}
	if r.NationalID != "" {
		return NationalKeyPrefix + r.NationalID
	}
	return ""
}

// SplitName splits DisplayName into given and family names. The last word is
// the family name. An empty name maps to "Unknown" for both parts.
func (r Record) SplitName() (given, family string) {
	parts := strings.Fields(r.DisplayName)
	switch len(parts) {
	case 0:
		return "Unknown", "Unknown"
	case 1:
		return "Unknown", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}
