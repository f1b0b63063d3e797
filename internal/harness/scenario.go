package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/fault"
)

// DefaultGroupID is the privilege group used when a scenario names none.
const DefaultGroupID = "G1"

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// GroupID is the privilege group new persons join. Nil means
	// DefaultGroupID; an explicit empty string disables assignment.
	GroupID *string `yaml:"group_id,omitempty"`

	// Batches are processed in order, one ProcessBatch call each, like
	// successive polling cycles.
	Batches []Batch `yaml:"batches"`

	// Failures are injected into collaborator calls before the first batch.
	Failures []FailureSpec `yaml:"failures,omitempty"`

	// Assertions validate the trace and the final ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Batch is one page of raw events as the registry would deliver it.
type Batch struct {
	Events []map[string]any `yaml:"events"`
}

// Envelopes decodes the batch through the same JSON path the upstream client
// uses, so unknown kinds surface as malformed events.
func (b Batch) Envelopes() ([]event.Envelope, error) {
	envs := make([]event.Envelope, 0, len(b.Events))
	for i, raw := range b.Events {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: encode: %w", i, err)
		}
		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("event %d: decode: %w", i, err)
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// FailureSpec injects an error into matching collaborator calls.
type FailureSpec struct {
	// Call is "downstream.create", "downstream.update", "downstream.delete",
	// "downstream.assign" or "upstream.status".
	Call string `yaml:"call"`

	// Key restricts the failure to one ledger key or external ID.
	Key string `yaml:"key,omitempty"`

	// Class is transient, rejected, or unclassified.
	Class string `yaml:"class"`

	// Times is how many matching calls fail. Zero fails every call.
	Times int `yaml:"times,omitempty"`

	Message string `yaml:"message,omitempty"`
}

// Assertion validates the trace or the final ledger.
type Assertion struct {
	// Type is one of call_count, call_order, ledger_state, status_reports.
	Type string `yaml:"type"`

	// Call is the call name (call_count).
	Call string `yaml:"call,omitempty"`

	// Key restricts call_count to one key, and names the entry for ledger_state.
	Key string `yaml:"key,omitempty"`

	// Count is the expected number of calls (call_count).
	Count int `yaml:"count"`

	// Calls is the expected order (call_order).
	Calls []string `yaml:"calls,omitempty"`

	// Expect holds expected ledger fields (ledger_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ExternalID and Statuses describe status_reports.
	ExternalID string   `yaml:"external_id,omitempty"`
	Statuses   []string `yaml:"statuses,omitempty"`
}

// Assertion type constants.
const (
	AssertCallCount     = "call_count"
	AssertCallOrder     = "call_order"
	AssertLedgerState   = "ledger_state"
	AssertStatusReports = "status_reports"
)

var knownCalls = map[string]bool{
	"downstream.create": true,
	"downstream.update": true,
	"downstream.delete": true,
	"downstream.assign": true,
	"upstream.status":   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Group returns the privilege group the scenario runs with.
func (s *Scenario) Group() string {
	if s.GroupID == nil {
		return DefaultGroupID
	}
	return *s.GroupID
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Batches) == 0 {
		return fmt.Errorf("batches list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, b := range s.Batches {
		if len(b.Events) == 0 {
			return fmt.Errorf("batches[%d]: events list is required", i)
		}
	}

	for i, f := range s.Failures {
		if !knownCalls[f.Call] {
			return fmt.Errorf("failures[%d]: unknown call %q", i, f.Call)
		}
		if _, err := parseClass(f.Class); err != nil {
			return fmt.Errorf("failures[%d]: %w", i, err)
		}
		if f.Times < 0 {
			return fmt.Errorf("failures[%d]: times must be non-negative", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCallCount:
		if !knownCalls[a.Call] {
			return fmt.Errorf("assertions[%d]: call_count needs a known call, got %q", index, a.Call)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for call_order", index)
		}
		for _, c := range a.Calls {
			if !knownCalls[c] {
				return fmt.Errorf("assertions[%d]: unknown call %q", index, c)
			}
		}
	case AssertLedgerState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for ledger_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for ledger_state", index)
		}
		for field := range a.Expect {
			if !ledgerFields[field] {
				return fmt.Errorf("assertions[%d]: unknown ledger field %q", index, field)
			}
		}
	case AssertStatusReports:
		if a.ExternalID == "" {
			return fmt.Errorf("assertions[%d]: external_id is required for status_reports", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// parseClass maps a scenario failure class to a fault class. "unclassified"
// produces a plain error, which the engine treats as transient.
func parseClass(s string) (fault.Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transient":
		return fault.ClassTransient, nil
	case "rejected":
		return fault.ClassRejected, nil
	case "unclassified":
		return fault.ClassNone, nil
	default:
		return "", fmt.Errorf("unknown failure class %q (want transient, rejected or unclassified)", s)
	}
}
