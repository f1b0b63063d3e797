package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/gatesync/internal/entity"
)

// Envelope is one raw event as delivered by the event consumer.
type Envelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"type"`
	OccurredAt time.Time       `json:"occurredAt,omitempty"`
	Payload    json.RawMessage `json:"data"`
}

// UnmarshalJSON resolves the wire type into a Kind once, so nothing past the
// consumer re-interprets event type strings. An unrecognized type is kept
// verbatim as an invalid Kind; Normalize reports it as malformed so one bad
// event does not fail the decode of a whole page.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		Kind       string          `json:"kind"`
		OccurredAt *time.Time      `json:"occurredAt"`
		Data       json.RawMessage `json:"data"`
		Payload    json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	typ := raw.Type
	if typ == "" {
		typ = raw.Kind
	}
	kind, err := ParseKind(typ)
	if err != nil {
		kind = Kind(typ)
	}

	e.ID = raw.ID
	e.Kind = kind
	if raw.OccurredAt != nil {
		e.OccurredAt = *raw.OccurredAt
	}
	e.Payload = raw.Data
	if len(e.Payload) == 0 {
		e.Payload = raw.Payload
	}
	return nil
}

// KindUndecodable marks an envelope that could not be decoded at all.
const KindUndecodable Kind = "undecodable"

// DecodeEnvelopes decodes each raw envelope on its own. One that cannot be
// decoded comes back with KindUndecodable, which Normalize reports as
// malformed, and its error is returned alongside; the rest of the list is
// unaffected.
func DecodeEnvelopes(raws []json.RawMessage) ([]Envelope, []error) {
	envs := make([]Envelope, 0, len(raws))
	var errs []error
	for i, raw := range raws {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			errs = append(errs, fmt.Errorf("envelope %d: %w", i, err))
			env = Envelope{ID: "index-" + strconv.Itoa(i), Kind: KindUndecodable, Payload: raw}
		}
		envs = append(envs, env)
	}
	return envs, errs
}

// Item is one person extracted from an envelope.
type Item struct {
	EventID string
	// Kind is always singular.
	Kind Kind
	// Index is the position of the person within the payload.
	Index  int
	Record entity.Record
}
