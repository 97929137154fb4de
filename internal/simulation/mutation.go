package simulation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"meridian/internal/backend"
)

// ErrInvalidMutation is returned for a mutation that is missing its required
// field, carries extra fields or has a non-positive amount.
var ErrInvalidMutation = errors.New("invalid mutation")

type Kind string

const (
	KindAddDevelopers  Kind = "add_developers"
	KindExtendDeadline Kind = "extend_deadline"
	KindRemoveScope    Kind = "remove_scope"
	KindClosePRs       Kind = "close_prs"
)

// Kinds lists every mutation kind in display order.
var Kinds = []Kind{KindAddDevelopers, KindExtendDeadline, KindRemoveScope, KindClosePRs}

// Mutation is a hypothetical change to the project. The set of variants is
// closed: AddDevelopers, ExtendDeadline, RemoveScope and ClosePRs.
type Mutation interface {
	Kind() Kind
	Validate() error
	// Request is the wire form sent to the simulation endpoint.
	Request() backend.MutationRequest
	sealed()
}

type AddDevelopers struct{ Count int }

type ExtendDeadline struct{ Days int }

type RemoveScope struct{ TaskCount int }

type ClosePRs struct{ PRCount int }

func (AddDevelopers) Kind() Kind  { return KindAddDevelopers }
func (ExtendDeadline) Kind() Kind { return KindExtendDeadline }
func (RemoveScope) Kind() Kind    { return KindRemoveScope }
func (ClosePRs) Kind() Kind       { return KindClosePRs }

func (m AddDevelopers) Validate() error  { return positive(m.Kind(), "count", m.Count) }
func (m ExtendDeadline) Validate() error { return positive(m.Kind(), "days", m.Days) }
func (m RemoveScope) Validate() error    { return positive(m.Kind(), "task_count", m.TaskCount) }
func (m ClosePRs) Validate() error       { return positive(m.Kind(), "pr_count", m.PRCount) }

func (m AddDevelopers) Request() backend.MutationRequest {
	return backend.MutationRequest{Type: string(m.Kind()), Count: m.Count}
}

func (m ExtendDeadline) Request() backend.MutationRequest {
	return backend.MutationRequest{Type: string(m.Kind()), Days: m.Days}
}

func (m RemoveScope) Request() backend.MutationRequest {
	return backend.MutationRequest{Type: string(m.Kind()), TaskCount: m.TaskCount}
}

func (m ClosePRs) Request() backend.MutationRequest {
	return backend.MutationRequest{Type: string(m.Kind()), PRCount: m.PRCount}
}

func (AddDevelopers) sealed()  {}
func (ExtendDeadline) sealed() {}
func (RemoveScope) sealed()    {}
func (ClosePRs) sealed()       {}

func positive(kind Kind, field string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %s requires a positive %s, got %d", ErrInvalidMutation, kind, field, n)
	}
	return nil
}

// amountField is the single field each kind carries besides type.
var amountField = map[Kind]string{
	KindAddDevelopers:  "count",
	KindExtendDeadline: "days",
	KindRemoveScope:    "task_count",
	KindClosePRs:       "pr_count",
}

// ParseMutation builds a validated mutation from a kind name and its amount.
func ParseMutation(kind string, n int) (Mutation, error) {
	var m Mutation
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindAddDevelopers:
		m = AddDevelopers{Count: n}
	case KindExtendDeadline:
		m = ExtendDeadline{Days: n}
	case KindRemoveScope:
		m = RemoveScope{TaskCount: n}
	case KindClosePRs:
		m = ClosePRs{PRCount: n}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMutation, kind)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeMutation parses {"type": ..., "<field>": n}. Exactly the field the
// type requires must be present, as a positive integer.
func DecodeMutation(data []byte) (Mutation, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMutation, err)
	}
	var kind string
	if err := json.Unmarshal(raw["type"], &kind); err != nil || kind == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidMutation)
	}
	field, ok := amountField[Kind(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMutation, kind)
	}
	for name := range raw {
		if name != "type" && name != field {
			return nil, fmt.Errorf("%w: %s does not accept %q", ErrInvalidMutation, kind, name)
		}
	}
	value, ok := raw[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidMutation, kind, field)
	}
	var n int
	dec := json.NewDecoder(bytes.NewReader(value))
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidMutation, field)
	}
	return ParseMutation(kind, n)
}

// EncodeMutation is the inverse of DecodeMutation.
func EncodeMutation(m Mutation) ([]byte, error) {
	return json.Marshal(m.Request())
}

// Amount returns the size of the mutation in its own unit.
func Amount(m Mutation) int {
	switch v := m.(type) {
	case AddDevelopers:
		return v.Count
	case ExtendDeadline:
		return v.Days
	case RemoveScope:
		return v.TaskCount
	case ClosePRs:
		return v.PRCount
	}
	return 0
}

func key(m Mutation) string {
	return fmt.Sprintf("%s:%d", m.Kind(), Amount(m))
}

// Scenario is a labelled mutation offered as a quick what-if.
type Scenario struct {
	Label    string
	Mutation Mutation
}

// DefaultScenarios is the dashboard's standard batch of four what-ifs.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Label: "Add 2 senior devs", Mutation: AddDevelopers{Count: 2}},
		{Label: "Extend deadline +2w", Mutation: ExtendDeadline{Days: 14}},
		{Label: "Remove one scoped task", Mutation: RemoveScope{TaskCount: 1}},
		{Label: "Close open PRs now", Mutation: ClosePRs{PRCount: 5}},
	}
}
