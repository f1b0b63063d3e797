package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/reconcile"
)

// Call is one recorded collaborator call.
type Call struct {
	// Target is "downstream" or "upstream".
	Target string
	// Op is create, update, delete, assign, or status.
	Op string
	// Key is the ledger key (downstream) or external ID (upstream).
	Key string
	// ID is the downstream person ID involved, if any.
	ID string
	// Detail carries the group ID or reported status.
	Detail string
	// Class is set when the call failed.
	Class fault.Class
}

// String renders the call as one trace line, e.g.
// "downstream create W1 id=hik-1" or "upstream status W1 approved id=hik-1".
func (c Call) String() string {
	parts := []string{c.Target, c.Op, c.Key}
	if c.Detail != "" {
		parts = append(parts, c.Detail)
	}
	if c.ID != "" {
		parts = append(parts, "id="+c.ID)
	}
	if c.Class != fault.ClassNone {
		parts = append(parts, "error="+c.Class.String())
	}
	return strings.Join(parts, " ")
}

// Name is "target.op", the form scenario assertions use.
func (c Call) Name() string {
	return c.Target + "." + c.Op
}

// Recorder collects calls from several fakes into one ordered trace.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls returns a copy of the trace.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many recorded calls have the given name ("downstream.create").
// Failed calls are counted too.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Name() == name {
			n++
		}
	}
	return n
}

// Lines renders the trace one call per line.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Failure injects an error into matching calls.
type Failure struct {
	// Call is the name to match, e.g. "downstream.create".
	Call string
	// Key restricts the failure to one ledger key or external ID. Empty matches all.
	Key string
	// Class is the failure class; empty produces an unclassified error.
	Class fault.Class
	// Times is how many calls fail before the failure is spent. Zero fails forever.
	Times   int
	Message string

	used int
}

func (f *Failure) match(name, key string) bool {
	if f.Call != name || (f.Key != "" && f.Key != key) {
		return false
	}
	return f.Times == 0 || f.used < f.Times
}

func (f *Failure) err(op string) error {
	f.used++
	msg := f.Message
	if msg == "" {
		msg = "injected failure"
	}
	cause := errors.New(msg)
	switch f.Class {
	case fault.ClassTransient:
		return fault.Transient(op, cause)
	case fault.ClassRejected:
		return fault.Rejected(op, cause)
	case fault.ClassMalformed:
		return fault.Malformed(op, cause)
	case fault.ClassLedgerIO:
		return fault.LedgerIO(op, cause)
	default:
		return fmt.Errorf("%s: %w", op, cause)
	}
}

type failures struct {
	mu   sync.Mutex
	list []*Failure
}

func (fs *failures) add(f Failure) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.list = append(fs.list, &f)
}

func (fs *failures) check(name, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, f := range fs.list {
		if f.match(name, key) {
			return f.err(name)
		}
	}
	return nil
}

// FakeDownstream is an in-memory access-control system that records every call.
type FakeDownstream struct {
	rec      *Recorder
	ids      *SequenceGenerator
	failures failures

	mu      sync.Mutex
	persons map[string]entity.Record
	groups  map[string]string
	keys    map[string]string
}

// NewFakeDownstream creates a fake that issues IDs hik-1, hik-2, ...
func NewFakeDownstream(rec *Recorder) *FakeDownstream {
	return &FakeDownstream{
		rec:     rec,
		ids:     NewSequenceGenerator("hik"),
		persons: make(map[string]entity.Record),
		groups:  make(map[string]string),
		keys:    make(map[string]string),
	}
}

// Fail injects a failure. name is the op without the target ("create").
func (d *FakeDownstream) Fail(f Failure) {
	if !strings.Contains(f.Call, ".") {
		f.Call = "downstream." + f.Call
	}
	d.failures.add(f)
}

func (d *FakeDownstream) Create(_ context.Context, r entity.Record) (string, error) {
	key := r.Key()
	if err := d.failures.check("downstream.create", key); err != nil {
		d.rec.add(Call{Target: "downstream", Op: "create", Key: key, Class: fault.ClassOf(err)})
		return "", err
	}

	id := d.ids.Generate()
	d.mu.Lock()
	d.persons[id] = r
	d.keys[id] = key
	d.mu.Unlock()

	d.rec.add(Call{Target: "downstream", Op: "create", Key: key, ID: id})
	return id, nil
}

func (d *FakeDownstream) Update(_ context.Context, id string, r entity.Record) error {
	key := r.Key()
	if err := d.failures.check("downstream.update", key); err != nil {
		d.rec.add(Call{Target: "downstream", Op: "update", Key: key, ID: id, Class: fault.ClassOf(err)})
		return err
	}

	d.mu.Lock()
	_, ok := d.persons[id]
	if ok {
		d.persons[id] = r
		d.keys[id] = key
	}
	d.mu.Unlock()

	if !ok {
		err := fault.Rejected("downstream.update", fmt.Errorf("person %s not found", id))
		d.rec.add(Call{Target: "downstream", Op: "update", Key: key, ID: id, Class: fault.ClassRejected})
		return err
	}
	d.rec.add(Call{Target: "downstream", Op: "update", Key: key, ID: id})
	return nil
}

func (d *FakeDownstream) Delete(_ context.Context, id string) error {
	key := d.keyOf(id)
	if err := d.failures.check("downstream.delete", key); err != nil {
		d.rec.add(Call{Target: "downstream", Op: "delete", Key: key, ID: id, Class: fault.ClassOf(err)})
		return err
	}

	d.mu.Lock()
	delete(d.persons, id)
	delete(d.groups, id)
	d.mu.Unlock()

	d.rec.add(Call{Target: "downstream", Op: "delete", Key: key, ID: id})
	return nil
}

func (d *FakeDownstream) AssignToGroup(_ context.Context, id, groupID string) error {
	key := d.keyOf(id)
	if err := d.failures.check("downstream.assign", key); err != nil {
		d.rec.add(Call{Target: "downstream", Op: "assign", Key: key, ID: id, Detail: groupID, Class: fault.ClassOf(err)})
		return err
	}

	d.mu.Lock()
	d.groups[id] = groupID
	d.mu.Unlock()

	d.rec.add(Call{Target: "downstream", Op: "assign", Key: key, ID: id, Detail: groupID})
	return nil
}

func (d *FakeDownstream) keyOf(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[id]
}

// Person returns the record stored under a downstream ID.
func (d *FakeDownstream) Person(id string) (entity.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.persons[id]
	return r, ok
}

// Group returns the privilege group a person was assigned to.
func (d *FakeDownstream) Group(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.groups[id]
}

// IDs returns the downstream IDs currently present, sorted.
func (d *FakeDownstream) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.persons))
	for id := range d.persons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FakeUpstream records status reports.
type FakeUpstream struct {
	rec      *Recorder
	failures failures

	mu      sync.Mutex
	reports []reconcile.StatusReport
}

// NewFakeUpstream creates a recording upstream.
func NewFakeUpstream(rec *Recorder) *FakeUpstream {
	return &FakeUpstream{rec: rec}
}

// Fail injects a failure into status reports.
func (u *FakeUpstream) Fail(f Failure) {
	f.Call = "upstream.status"
	u.failures.add(f)
}

func (u *FakeUpstream) SetStatus(_ context.Context, r reconcile.StatusReport) error {
	if err := u.failures.check("upstream.status", r.ExternalID); err != nil {
		u.rec.add(Call{Target: "upstream", Op: "status", Key: r.ExternalID, ID: r.DownstreamID, Detail: r.Status.String(), Class: fault.ClassOf(err)})
		return err
	}

	u.mu.Lock()
	u.reports = append(u.reports, r)
	u.mu.Unlock()

	u.rec.add(Call{Target: "upstream", Op: "status", Key: r.ExternalID, ID: r.DownstreamID, Detail: r.Status.String()})
	return nil
}

// Reports returns the successful reports in order.
func (u *FakeUpstream) Reports() []reconcile.StatusReport {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]reconcile.StatusReport, len(u.reports))
	copy(out, u.reports)
	return out
}

// Last returns the most recent successful report for an external ID.
func (u *FakeUpstream) Last(externalID string) (reconcile.StatusReport, bool) {
	reports := u.Reports()
	for i := len(reports) - 1; i >= 0; i-- {
		if reports[i].ExternalID == externalID {
			return reports[i], true
		}
	}
	return reconcile.StatusReport{}, false
}

var (
	_ reconcile.Downstream = (*FakeDownstream)(nil)
	_ reconcile.Upstream   = (*FakeUpstream)(nil)
)
