// Package reconcile implements the gatesync decision engine.
//
// The engine consumes normalized person items, looks each one up in the
// ledger, decides the single downstream action the transition table allows,
// performs it, and commits the outcome before anything is reported upstream.
//
// ARCHITECTURE:
//
// Single-Writer Processing:
// ProcessBatch handles items strictly one at a time, in payload order. The
// ledger is only written from this path, so no two items ever race on the
// same key.
//
// Per-Item Flow:
//  1. Resolve the ledger entry (key, superseded chain, national ID fallback)
//  2. Merge the validity window
//  3. Choose the action from (state, kind)
//  4. Call the downstream system
//  5. Commit the ledger entry
//  6. Report status upstream and record what was reported
//
// Failure Handling:
// Transient failures leave the ledger untouched and rely on redelivery.
// Rejected inputs are annotated with their fingerprint, reported Failed, and
// skipped when the same input arrives again. A ledger write failure aborts
// the rest of the batch.
//
// The engine owns no timers and no goroutines. Time comes from the Now
// option; scheduling belongs to the poller.
package reconcile
