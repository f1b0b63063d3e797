package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/gatesync/internal/canonical"
	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/ledger"
	"github.com/roach88/gatesync/internal/window"
)

// maxSupersededHops bounds how far Apply follows retired keys.
const maxSupersededHops = 16

// Engine applies person items to the downstream system and the ledger.
//
// Thread-safety model:
//   - ProcessBatch and Apply must not be called concurrently
//   - the ledger is written only from these methods
type Engine struct {
	ledger     Ledger
	downstream Downstream
	upstream   Upstream
	normalizer *event.Normalizer

	images   ImageResolver
	observer Observer
	groupID  string
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithImageResolver resolves face and ID image references before create and
// update calls. Without one, records are sent with references only.
func WithImageResolver(r ImageResolver) Option {
	return func(e *Engine) {
		e.images = r
	}
}

// WithObserver receives one call per processed person.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithGroupID sets the privilege group new persons are assigned to. An empty
// group ID skips assignment.
func WithGroupID(id string) Option {
	return func(e *Engine) {
		e.groupID = id
	}
}

// WithNow replaces the wall clock used for ledger timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine. upstream may be nil, in which case no status is
// reported (offline replay).
func New(l Ledger, d Downstream, u Upstream, n *event.Normalizer, opts ...Option) *Engine {
	e := &Engine{
		ledger:     l,
		downstream: d,
		upstream:   u,
		normalizer: n,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessBatch normalizes and applies envs in order. Cancellation is checked
// between items only; an item that has started always runs to completion.
// A ledger failure stops the batch and is returned along with the outcomes
// gathered so far.
func (e *Engine) ProcessBatch(ctx context.Context, envs []event.Envelope) (BatchReport, error) {
	var report BatchReport
	work := context.WithoutCancel(ctx)

	for _, env := range envs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		items, errs := e.normalizer.Normalize(env)
		for _, err := range errs {
			e.logger.Warn("malformed event",
				"event_id", env.ID,
				"kind", env.Kind,
				"class", fault.ClassMalformed,
				"error", err,
			)
			e.record(&report, Outcome{
				EventID: env.ID,
				Kind:    env.Kind.Singular(),
				Action:  ActionSkip,
				Class:   fault.ClassMalformed,
				Err:     err,
			})
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			out, err := e.Apply(work, item)
			e.record(&report, out)
			if err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (e *Engine) record(report *BatchReport, out Outcome) {
	report.Outcomes = append(report.Outcomes, out)
	if e.observer != nil {
		e.observer.ObserveOutcome(out.Kind.String(), out.Action.String(), string(out.Class))
	}
}

// step carries the per-item working state through Apply.
type step struct {
	item        event.Item
	rec         entity.Record
	key         string
	entry       *ledger.Entry
	adoptFrom   string
	fingerprint string
	merged      window.Window
	now         time.Time
}

// base returns the entry a mutation starts from: a copy of the resolved
// entry, or a fresh one for an unknown person.
func (s *step) base() ledger.Entry {
	var next ledger.Entry
	if s.entry != nil {
		next = *s.entry.Clone()
	} else {
		next = ledger.Entry{CreatedAt: s.now}
	}
	next.Key = s.key
	if s.rec.NationalID != "" {
		next.NationalID = s.rec.NationalID
	}
	next.LastAppliedEventKind = s.item.Kind.String()
	return next
}

// effect is what a successful downstream action leaves to report.
type effect struct {
	status entity.Status
	reason string
	// partial is a failure after the ledger was already committed. The
	// status is still reported.
	partial error
}

// Apply processes one person item. The returned error is non-nil only for
// ledger failures; every other failure is carried in the Outcome.
func (e *Engine) Apply(ctx context.Context, item event.Item) (Outcome, error) {
	out := Outcome{
		EventID:    item.EventID,
		ExternalID: item.Record.ExternalID,
		Key:        item.Record.Key(),
		Kind:       item.Kind,
	}

	s, err := e.prepare(ctx, item)
	if err != nil {
		return e.abort(out, err)
	}
	out.Key = s.key

	if s.entry != nil && s.entry.Rejection != nil && s.entry.Rejection.Fingerprint == s.fingerprint {
		out.Action = ActionSkip
		out.Class = fault.ClassRejected
		out.Err = ErrPreviouslyRejected
		e.logger.Info("skipping previously rejected payload",
			"event_id", item.EventID,
			"external_id", item.Record.ExternalID,
			"kind", item.Kind,
			"class", fault.ClassRejected,
		)
		if s.entry.ReportedStatus != string(entity.StatusFailed) {
			if err := e.report(ctx, s, &out, entity.StatusFailed, s.entry.Rejection.Reason); err != nil {
				return e.abort(out, err)
			}
		}
		return out, nil
	}

	out.Action = decide(ledger.StateOf(s.entry), item.Kind)

	var eff effect
	switch out.Action {
	case ActionCreate:
		eff, err = e.create(ctx, s)
	case ActionUpdate:
		eff, err = e.update(ctx, s)
	case ActionDelete:
		eff, err = e.remove(ctx, s)
	default:
		eff, err = e.touch(ctx, s)
	}
	if err != nil {
		if fault.IsLedgerIO(err) {
			return e.abort(out, err)
		}
		return e.failed(ctx, s, out, err)
	}

	if eff.partial != nil {
		out.Class = fault.ClassOf(eff.partial)
		out.Err = eff.partial
		e.logger.Warn("downstream action incomplete",
			"event_id", item.EventID,
			"external_id", item.Record.ExternalID,
			"kind", item.Kind,
			"action", out.Action,
			"class", out.Class,
			"error", eff.partial,
		)
	} else {
		e.logger.Info("person reconciled",
			"event_id", item.EventID,
			"external_id", item.Record.ExternalID,
			"key", s.key,
			"kind", item.Kind,
			"action", out.Action,
			"downstream_id", s.entry.DownstreamIDOrEmpty(),
		)
	}

	if eff.status != "" {
		if err := e.report(ctx, s, &out, eff.status, eff.reason); err != nil {
			return e.abort(out, err)
		}
	}
	return out, nil
}

// prepare resolves the ledger entry, the payload fingerprint, and the merged
// window for item.
func (e *Engine) prepare(ctx context.Context, item event.Item) (*step, error) {
	s := &step{item: item, rec: item.Record, now: e.now()}

	if err := e.resolve(ctx, s); err != nil {
		return nil, err
	}

	fp, err := canonical.RecordFingerprint(item.Kind.String(), item.Record)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", s.key, err)
	}
	s.fingerprint = fp

	var existing *window.Window
	if s.entry != nil && !s.entry.Window.From.IsZero() && !s.entry.Window.To.IsZero() {
		w := s.entry.Window
		existing = &w
	}
	merged, corrected := window.Merge(existing, window.New(item.Record.ValidFrom, item.Record.ValidTo))
	if corrected {
		e.logger.Warn("inverted validity window corrected",
			"event_id", item.EventID,
			"external_id", item.Record.ExternalID,
			"window", merged.String(),
		)
	}
	s.merged = merged
	s.rec.ValidFrom = merged.From
	s.rec.ValidTo = merged.To
	return s, nil
}

// resolve finds the entry for s.rec: by key, following retired keys, then by
// national ID. A national ID match under a different key is adopted into the
// record's key on the first commit, except for legacy national keys, which
// defer to the existing row.
func (e *Engine) resolve(ctx context.Context, s *step) error {
	s.key = s.rec.Key()
	entry, err := e.ledger.Get(ctx, s.key)
	if err != nil {
		return asLedgerIO("get "+s.key, err)
	}
	for hops := 0; entry != nil && entry.SupersededBy != ""; hops++ {
		if hops == maxSupersededHops {
			return fault.LedgerIO("resolve "+s.rec.Key(), fmt.Errorf("superseded chain longer than %d", maxSupersededHops))
		}
		s.key = entry.SupersededBy
		if entry, err = e.ledger.Get(ctx, s.key); err != nil {
			return asLedgerIO("get "+s.key, err)
		}
	}
	if entry != nil || s.rec.NationalID == "" {
		s.entry = entry
		return nil
	}

	match, err := e.ledger.GetByNationalID(ctx, s.rec.NationalID)
	if err != nil {
		return asLedgerIO("get by national id", err)
	}
	if match == nil {
		return nil
	}
	s.entry = match
	if strings.HasPrefix(s.key, entity.NationalKeyPrefix) {
		s.key = match.Key
		return nil
	}
	s.adoptFrom = match.Key
	return nil
}

func (e *Engine) create(ctx context.Context, s *step) (effect, error) {
	next := s.base()
	if err := e.resolveImages(ctx, s, &next); err != nil {
		return effect{}, err
	}

	id, err := e.downstream.Create(ctx, s.rec)
	if err != nil {
		return effect{}, err
	}

	next.DownstreamID = &id
	next.DownstreamDeleted = false
	next.GroupAssigned = e.groupID == ""
	next.Window = s.merged
	next.Rejection = nil
	if err := e.commit(ctx, s, next); err != nil {
		return effect{}, err
	}

	return e.approved(ctx, s)
}

func (e *Engine) update(ctx context.Context, s *step) (effect, error) {
	next := s.base()
	if err := e.resolveImages(ctx, s, &next); err != nil {
		return effect{}, err
	}

	if err := e.downstream.Update(ctx, next.DownstreamIDOrEmpty(), s.rec); err != nil {
		return effect{}, err
	}

	next.Window = s.merged
	next.Rejection = nil
	if err := e.commit(ctx, s, next); err != nil {
		return effect{}, err
	}

	return e.approved(ctx, s)
}

func (e *Engine) remove(ctx context.Context, s *step) (effect, error) {
	next := s.base()
	id := next.DownstreamIDOrEmpty()

	if err := e.downstream.Delete(ctx, id); err != nil {
		return effect{}, err
	}

	next.PreviousDownstreamID = id
	next.DownstreamID = nil
	next.DownstreamDeleted = true
	next.GroupAssigned = false
	next.Rejection = nil
	if err := e.commit(ctx, s, next); err != nil {
		return effect{}, err
	}
	return effect{status: entity.StatusBlocked, reason: removalReason(s.item.Kind, s.item.Record)}, nil
}

// touch records the event without any downstream call. An unknown person is
// recorded as deleted so a late create cannot resurrect it unnoticed; a
// deleted person keeps its state and only has its status re-sent if the last
// report never landed.
func (e *Engine) touch(ctx context.Context, s *step) (effect, error) {
	state := ledger.StateOf(s.entry)
	next := s.base()

	var eff effect
	if state == ledger.StateUnknown {
		next.DownstreamDeleted = true
		next.DownstreamID = nil
		next.Window = s.merged
		next.Rejection = nil
	} else if next.ReportedStatus != "" && next.ReportedStatus != string(entity.StatusBlocked) {
		eff = effect{status: entity.StatusBlocked, reason: removalReason(s.item.Kind, s.item.Record)}
	}

	if err := e.commit(ctx, s, next); err != nil {
		return effect{}, err
	}
	return eff, nil
}

// approved assigns the group and reports Approved. The person already exists
// downstream, so a failed assignment is carried as partial and left for the
// next provisioning event to retry.
func (e *Engine) approved(ctx context.Context, s *step) (effect, error) {
	eff := effect{status: entity.StatusApproved}
	if err := e.assignGroup(ctx, s); err != nil {
		if fault.IsLedgerIO(err) {
			return effect{}, err
		}
		eff.partial = err
	}
	return eff, nil
}

// assignGroup adds the committed person to the privilege group if that has
// not happened yet, and commits the flag.
func (e *Engine) assignGroup(ctx context.Context, s *step) error {
	if s.entry.GroupAssigned || e.groupID == "" {
		return nil
	}
	if err := e.downstream.AssignToGroup(ctx, s.entry.DownstreamIDOrEmpty(), e.groupID); err != nil {
		return fmt.Errorf("assign to group %s: %w", e.groupID, err)
	}
	next := *s.entry.Clone()
	next.GroupAssigned = true
	return e.commit(ctx, s, next)
}

func (e *Engine) resolveImages(ctx context.Context, s *step, next *ledger.Entry) error {
	if e.images == nil {
		return nil
	}
	refs := []struct {
		ref  string
		path *string
	}{
		{s.rec.FaceImageRef, &s.rec.FaceImagePath},
		{s.rec.IDImageRef, &s.rec.IDImagePath},
	}
	for _, r := range refs {
		if r.ref == "" {
			continue
		}
		local, err := e.images.Resolve(ctx, r.ref)
		if err != nil {
			return fmt.Errorf("resolve image: %w", err)
		}
		*r.path = local
		if next.ImageRefs == nil {
			next.ImageRefs = make(map[string]string)
		}
		next.ImageRefs[r.ref] = local
	}
	return nil
}

// failed handles a downstream failure that happened before any commit.
// Transient failures change nothing. Rejected inputs are annotated with their
// fingerprint and reported Failed.
func (e *Engine) failed(ctx context.Context, s *step, out Outcome, cause error) (Outcome, error) {
	out.Class = fault.ClassOf(cause)
	out.Err = cause
	e.logger.Error("downstream action failed",
		"event_id", s.item.EventID,
		"external_id", s.item.Record.ExternalID,
		"kind", s.item.Kind,
		"action", out.Action,
		"class", out.Class,
		"error", cause,
	)
	if out.Class != fault.ClassRejected {
		return out, nil
	}

	next := ledger.Entry{Key: s.key, NationalID: s.rec.NationalID, CreatedAt: s.now}
	if s.entry != nil {
		next = *s.entry.Clone()
		next.Key = s.key
	}
	next.Rejection = &ledger.Rejection{
		Fingerprint: s.fingerprint,
		Reason:      cause.Error(),
		At:          s.now,
	}
	if err := e.commit(ctx, s, next); err != nil {
		return e.abort(out, err)
	}
	if err := e.report(ctx, s, &out, entity.StatusFailed, cause.Error()); err != nil {
		return e.abort(out, err)
	}
	return out, nil
}

// report sends a status upstream and records it in the ledger. Upstream
// failures are carried in out; only ledger failures are returned.
func (e *Engine) report(ctx context.Context, s *step, out *Outcome, status entity.Status, reason string) error {
	if e.upstream == nil || s.item.Record.ExternalID == "" {
		return nil
	}

	rep := StatusReport{
		ExternalID:   s.item.Record.ExternalID,
		Status:       status,
		DownstreamID: s.entry.DownstreamIDOrEmpty(),
		Reason:       reason,
	}
	if err := e.upstream.SetStatus(ctx, rep); err != nil {
		class := fault.ClassOf(err)
		e.logger.Warn("status report failed",
			"event_id", s.item.EventID,
			"external_id", rep.ExternalID,
			"kind", s.item.Kind,
			"status", status,
			"class", class,
			"error", err,
		)
		if out.Class == fault.ClassNone {
			out.Class = class
			out.Err = fmt.Errorf("report %s: %w", status, err)
		}
		return nil
	}

	next := *s.entry.Clone()
	next.ReportedStatus = string(status)
	return e.commit(ctx, s, next)
}

// commit writes next, adopting the matched row on the first write when the
// person was found under a different key.
func (e *Engine) commit(ctx context.Context, s *step, next ledger.Entry) error {
	next.UpdatedAt = s.now
	if next.CreatedAt.IsZero() {
		next.CreatedAt = s.now
	}

	if s.adoptFrom != "" {
		if err := e.ledger.Adopt(ctx, s.adoptFrom, next); err != nil {
			return asLedgerIO("adopt "+s.adoptFrom, err)
		}
		e.logger.Info("ledger entry re-keyed",
			"external_id", s.item.Record.ExternalID,
			"from", s.adoptFrom,
			"to", next.Key,
		)
		s.adoptFrom = ""
	} else if err := e.ledger.Put(ctx, next); err != nil {
		return asLedgerIO("put "+next.Key, err)
	}

	s.entry = &next
	return nil
}

func (e *Engine) abort(out Outcome, err error) (Outcome, error) {
	err = asLedgerIO("apply", err)
	out.Class = fault.ClassLedgerIO
	out.Err = err
	e.logger.Error("ledger failure, aborting batch",
		"event_id", out.EventID,
		"external_id", out.ExternalID,
		"kind", out.Kind,
		"class", out.Class,
		"error", err,
	)
	return out, err
}

func asLedgerIO(op string, err error) error {
	if fault.IsLedgerIO(err) {
		return err
	}
	return fault.LedgerIO(op, err)
}
