package engine

import (
	"time"

	"github.com/roach88/courselink/internal/domain"
)

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	Pass     string
	Planned  int
	Applied  int
	Noop     int
	Failed   int
	Skipped  bool
	Duration time.Duration
}

// Failure is a mutation that could not be applied. It is retried by the
// next run.
type Failure struct {
	Change Change
	Error  string
}

// Result summarizes a reconciliation run.
type Result struct {
	RunID       string
	Scope       domain.Scope
	Passes      []PassResult
	Failures    []Failure
	Interrupted bool
	Duration    time.Duration
}

// Applied returns the number of mutations that changed state.
func (r *Result) Applied() int {
	n := 0
	for _, p := range r.Passes {
		n += p.Applied
	}
	return n
}

// Failed returns the number of mutations that failed.
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Pass returns the result of the named pass.
func (r *Result) Pass(name string) (PassResult, bool) {
	for _, p := range r.Passes {
		if p.Pass == name {
			return p, true
		}
	}
	return PassResult{}, false
}

// Plan is the set of changes a reconciliation would apply right now.
type Plan struct {
	Scope   domain.Scope
	Changes []Change
}

// Empty reports whether the system already satisfies the invariant in scope.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}

// Canonical renders the plan as canonical JSON, for golden files and
// machine-readable CLI output.
func (p *Plan) Canonical() ([]byte, error) {
	changes := make([]any, 0, len(p.Changes))
	for _, c := range p.Changes {
		changes = append(changes, c.canonical())
	}
	return domain.MarshalCanonical(map[string]any{
		"scope":   p.Scope.String(),
		"changes": changes,
	})
}
