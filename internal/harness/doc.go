// Package harness runs reconciliation scenarios described in YAML.
//
// A scenario lists batches of raw lifecycle events, failures to inject into
// the downstream and upstream collaborators, and assertions on the result.
// Each run uses the real reconciliation engine with a fresh SQLite ledger in
// a temporary directory, and recording fakes for HikCentral and the registry,
// so the trace is deterministic:
//
//	downstream create W1 id=hik-1
//	downstream assign W1 G1 id=hik-1
//	upstream status W1 approved id=hik-1
//
// Supported assertions:
//   - call_count: a call name ("downstream.delete") occurs exactly N times
//   - call_order: call names occur in this order, gaps allowed
//   - ledger_state: fields of one ledger entry
//   - status_reports: the statuses reported for one external ID, in order
//
// The full trace, per-item outcomes and final ledger render to a text
// snapshot that is compared against golden files with goldie.
package harness
