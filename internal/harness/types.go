package harness

import (
	"github.com/roach88/courselink/internal/testutil"
)

// Trace event types.
const (
	TraceStep  = "step"
	TraceEvent = "event"
)

// TraceEntry is one line of a scenario trace: a step the scenario ran or
// an event the engine handled.
type TraceEntry struct {
	Seq     int64
	Type    string
	Detail  string
	Outcome string
}

func (e TraceEntry) canonical() map[string]any {
	m := map[string]any{
		"seq":    e.Seq,
		"type":   e.Type,
		"detail": e.Detail,
	}
	if e.Outcome != "" {
		m["outcome"] = e.Outcome
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool

	// Trace lists steps and handled events in order.
	Trace []TraceEntry

	// Errors contains failed expectations and step errors.
	Errors []string

	// State is the final store state.
	State testutil.State
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(typ, detail, outcome string) {
	r.Trace = append(r.Trace, TraceEntry{
		Seq:     int64(len(r.Trace) + 1),
		Type:    typ,
		Detail:  detail,
		Outcome: outcome,
	})
}
