package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/window"
)

// ErrMissingIdentity is the cause of a MalformedEventError for a person that
// carries neither an external ID nor a national ID.
var ErrMissingIdentity = errors.New("person has neither external id nor national id")

// MalformedEventError reports a person (or whole payload) that could not be
// normalized. The rest of the batch is unaffected.
type MalformedEventError struct {
	EventID string
	Kind    Kind
	Index   int
	Err     error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %s (%s) person %d: %v", e.EventID, e.Kind, e.Index, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// FaultClass implements the classifier used by fault.ClassOf.
func (e *MalformedEventError) FaultClass() fault.Class {
	return fault.ClassMalformed
}

// person is the registry's wire shape for a worker. Several fields have more
// than one accepted name because older payloads used different keys.
type person struct {
	ID                  string `json:"id"`
	ExternalID          string `json:"externalId"`
	WorkerID            string `json:"workerId"`
	NationalIDNumber    string `json:"nationalIdNumber"`
	NationalID          string `json:"nationalId"`
	FullName            string `json:"fullName"`
	DelegatedUserMobile string `json:"delegatedUserMobile"`
	Phone               string `json:"phone"`
	DelegatedUserEmail  string `json:"delegatedUserEmail"`
	Email               string `json:"email"`
	UnitNumber          string `json:"unitNumber"`
	FacePhoto           string `json:"facePhoto"`
	NationalIDImage     string `json:"nationalIdImage"`
	Blocked             bool   `json:"blocked"`
	BlockedReason       string `json:"blockedReason"`
	ValidFrom           string `json:"validFrom"`
	ValidTo             string `json:"validTo"`
}

// Defaults supplies values for fields an event leaves out.
type Defaults struct {
	Window window.Window
	// Zone resolves bare dates such as "2025-01-01".
	Zone *time.Location
}

// Normalizer converts envelopes into Items.
type Normalizer struct {
	defaults Defaults
}

// NewNormalizer creates a Normalizer with the given defaults.
func NewNormalizer(d Defaults) *Normalizer {
	if d.Zone == nil {
		d.Zone = time.UTC
	}
	return &Normalizer{defaults: d}
}

// Normalize expands env into one Item per person. Persons that cannot be
// normalized produce a *MalformedEventError and are skipped; the returned
// items keep payload order.
func (n *Normalizer) Normalize(env Envelope) ([]Item, []error) {
	if !env.Kind.Valid() {
		return nil, []error{&MalformedEventError{EventID: env.ID, Kind: env.Kind, Index: -1, Err: fmt.Errorf("unknown event kind %q", env.Kind)}}
	}

	raws, err := splitPayload(env.Payload)
	if err != nil {
		return nil, []error{&MalformedEventError{EventID: env.ID, Kind: env.Kind, Index: -1, Err: err}}
	}

	var (
		items []Item
		errs  []error
	)
	for i, raw := range raws {
		var p person
		if err := json.Unmarshal(raw, &p); err != nil {
			errs = append(errs, &MalformedEventError{EventID: env.ID, Kind: env.Kind, Index: i, Err: err})
			continue
		}
		rec, err := n.toRecord(p)
		if err != nil {
			errs = append(errs, &MalformedEventError{EventID: env.ID, Kind: env.Kind, Index: i, Err: err})
			continue
		}
		items = append(items, Item{
			EventID: env.ID,
			Kind:    env.Kind.Singular(),
			Index:   i,
			Record:  rec,
		})
	}
	return items, errs
}

// splitPayload accepts a single object, a bare array, or an object holding a
// "workers" array. A single object is also accepted for bulk kinds, and an
// array for single kinds; the shape decides, not the kind.
func splitPayload(payload json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("empty payload")
	}

	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode person list: %w", err)
		}
		return list, nil
	case '{':
		var wrapper struct {
			Workers []json.RawMessage `json:"workers"`
			Worker  json.RawMessage   `json:"worker"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if wrapper.Workers != nil {
			return wrapper.Workers, nil
		}
		if len(wrapper.Worker) > 0 {
			return []json.RawMessage{wrapper.Worker}, nil
		}
		return []json.RawMessage{trimmed}, nil
	default:
		return nil, errors.New("payload is neither an object nor an array")
	}
}

func (n *Normalizer) toRecord(p person) (entity.Record, error) {
	rec := entity.Record{
		ExternalID:    clean(first(p.ExternalID, p.ID, p.WorkerID)),
		NationalID:    clean(first(p.NationalIDNumber, p.NationalID)),
		DisplayName:   strings.Join(strings.Fields(clean(p.FullName)), " "),
		UnitLabel:     clean(p.UnitNumber),
		FaceImageRef:  strings.TrimSpace(p.FacePhoto),
		IDImageRef:    strings.TrimSpace(p.NationalIDImage),
		Blocked:       p.Blocked,
		BlockedReason: clean(p.BlockedReason),
		Contact: entity.Contact{
			Phone: clean(first(p.DelegatedUserMobile, p.Phone)),
			Email: strings.ToLower(clean(first(p.DelegatedUserEmail, p.Email))),
		},
	}
	if rec.ExternalID == "" && rec.NationalID == "" {
		return entity.Record{}, ErrMissingIdentity
	}

	from, to := n.defaults.Window.From, n.defaults.Window.To
	if v := strings.TrimSpace(p.ValidFrom); v != "" {
		t, err := window.Parse(v, false, n.defaults.Zone)
		if err != nil {
			return entity.Record{}, fmt.Errorf("validFrom: %w", err)
		}
		from = t
	}
	if v := strings.TrimSpace(p.ValidTo); v != "" {
		t, err := window.Parse(v, true, n.defaults.Zone)
		if err != nil {
			return entity.Record{}, fmt.Errorf("validTo: %w", err)
		}
		to = t
	}
	rec.ValidFrom = from.Truncate(time.Second)
	rec.ValidTo = to.Truncate(time.Second)
	return rec, nil
}

func first(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
