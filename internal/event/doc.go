// Package event turns raw upstream event envelopes into canonical records.
//
// Payload shapes differ by event kind: single-person kinds carry one person
// object, bulk kinds carry a list (a bare JSON array or an object with a
// "workers" field). Normalization resolves the shape once and emits one Item
// per person, in payload order, with the kind collapsed to its singular form.
//
// Normalization is pure: no network, no ledger.
package event
