package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/window"
)

// Domain prefixes keep hashes of different kinds of content apart.
const (
	DomainRecord = "gatesync/record/v1"
	DomainImage  = "gatesync/image/v1"
)

// HashWithDomain computes SHA256(domain || 0x00 || data) as hex.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordFingerprint identifies one event kind applied to one person payload.
// Two deliveries of the same event produce the same fingerprint.
func RecordFingerprint(kind string, r entity.Record) (string, error) {
	obj := map[string]any{
		"kind":           kind,
		"external_id":    r.ExternalID,
		"national_id":    r.NationalID,
		"display_name":   r.DisplayName,
		"phone":          r.Contact.Phone,
		"email":          r.Contact.Email,
		"unit_label":     r.UnitLabel,
		"face_image_ref": r.FaceImageRef,
		"id_image_ref":   r.IDImageRef,
		"blocked":        r.Blocked,
		"blocked_reason": r.BlockedReason,
		"valid_from":     window.Format(r.ValidFrom),
		"valid_to":       window.Format(r.ValidTo),
	}

	data, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("record fingerprint: %w", err)
	}
	return HashWithDomain(DomainRecord, data), nil
}

// ImageKey derives a stable file name component from an image reference.
func ImageKey(ref string) string {
	return HashWithDomain(DomainImage, []byte(ref))
}
