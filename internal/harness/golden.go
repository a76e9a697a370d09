package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/courselink/internal/domain"
)

// Snapshot renders a scenario run as canonical JSON: final state plus
// trace.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, entry := range result.Trace {
		trace[i] = entry.canonical()
	}
	return domain.MarshalCanonical(map[string]any{
		"name": name,
		"state": map[string]any{
			"links":       result.State.Links,
			"memberships": result.State.Memberships,
			"roles":       result.State.Roles,
		},
		"trace": trace,
	})
}

// RunWithGolden executes a scenario and compares the snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
