// Package entity defines the canonical person record shared by the event
// normalizer, the reconciliation engine and the transport adapters.
//
// A Record never carries image bytes. Face and ID card images are opaque
// references that an image resolver turns into local files before a downstream
// call needs them.
package entity
