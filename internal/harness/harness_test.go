package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/testutil"
)

func scenarioFiles(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	return files
}

func TestScenarios(t *testing.T) {
	for _, path := range scenarioFiles(t) {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s\nstate:\n%s", strings.Join(result.Errors, "\n"), result.State)
		})
	}
}

func TestScenarios_MemStoreMatchesSQLite(t *testing.T) {
	for _, path := range scenarioFiles(t) {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			onSQLite, err := Run(scenario)
			require.NoError(t, err)
			inMemory, err := Run(scenario, WithBackend(testutil.NewMemStore()))
			require.NoError(t, err)

			assert.True(t, inMemory.Pass, strings.Join(inMemory.Errors, "\n"))
			assert.Equal(t, onSQLite.State, inMemory.State)
			assert.Equal(t, onSQLite.Trace, inMemory.Trace)
		})
	}
}

func TestGolden_RoleFollowsMembership(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "role_follows_membership.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_ReportsMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: Expectation missing the propagated membership
courses: [{id: 2}, {id: 3}]
links: [{child: 2, parent: 3}]
steps:
  - {do: enrol, user: 7, course: 2}
expect:
  memberships:
    - course=2 user=7 via=manual
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected: course=3 user=7 via=courselink:1")
}

func TestRun_ReportsInvariantViolation(t *testing.T) {
	// A link-owned record nothing justifies, seeded past the engine.
	scenario, err := ParseScenario([]byte(`
name: stray_record
description: Link membership with no child membership behind it
courses: [{id: 2}, {id: 3}]
links: [{child: 2, parent: 3}]
memberships:
  - {user: 7, course: 3, via: "link:1"}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.False(t, result.Pass)
	assert.Contains(t, strings.Join(result.Errors, "\n"), "invariant: unjustified membership")
}

func TestRun_StepErrors(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: step_errors
description: Failing and unexpectedly succeeding steps
courses: [{id: 2}, {id: 3}]
steps:
  - {do: disable_link, link: 9}
  - {do: create_link, child: 2, course: 3, expect_error: LINK_NOT_FOUND}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "LINK_NOT_FOUND")
	assert.Contains(t, result.Errors[1], "expected error containing")

	require.NotEmpty(t, result.Trace)
	assert.Equal(t, TraceStep, result.Trace[0].Type)
	assert.True(t, strings.HasPrefix(result.Trace[0].Outcome, "error: LINK_NOT_FOUND"))
}

func TestRun_TraceIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "course_deletion_cascade.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
