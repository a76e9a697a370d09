package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedCourses creates courses 2 (Algebra) and 3 (Mathematics) and enrols
// user 7 in 2 as a student.
func seedCourses(t *testing.T, db string) {
	t.Helper()
	mustExecute(t, db, "course", "add", "2", "--short", "ALG", "--name", "Algebra")
	mustExecute(t, db, "course", "add", "3", "--short", "MATH", "--name", "Mathematics")
	mustExecute(t, db, "member", "add", "--user", "7", "--course", "2")
	mustExecute(t, db, "role", "grant", "--user", "7", "--role", "5", "--course", "2")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "courselink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLinkAdd_SynchronisesAtOnce(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)

	out := mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")
	assert.Contains(t, out, "Created link 1: 2 -> 3 (Course link (Algebra)), 2 applied")

	state := mustExecute(t, db, "state")
	assert.Contains(t, state, "1: 2 -> 3 enabled")
	assert.Contains(t, state, "course=3 user=7 via=courselink:1")
	assert.Contains(t, state, "course=3 user=7 role=5 via=courselink:1")
}

func TestLinkAdd_Rejected(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"self", []string{"--parent", "3", "--child", "3"}, "INVALID_LINK"},
		{"site root", []string{"--parent", "3", "--child", "1"}, "INVALID_LINK"},
		{"missing course", []string{"--parent", "3", "--child", "99"}, "COURSE_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--db", db, "link", "add"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}

	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")
	out, err := execute(t, "--db", db, "--format", "json", "link", "add", "--parent", "3", "--child", "2")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "DUPLICATE_LINK", resp.Error.Code)
}

func TestMemberAndRole_PropagateThroughEvents(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)
	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")

	out := mustExecute(t, db, "member", "add", "--user", "8", "--course", "2", "--via", "cohort")
	assert.Contains(t, out, "via=cohort: done")
	mustExecute(t, db, "role", "grant", "--user", "8", "--role", "3", "--course", "2")

	state := mustExecute(t, db, "state", "--check")
	assert.Contains(t, state, "course=3 user=8 via=courselink:1")
	assert.Contains(t, state, "course=3 user=8 role=3 via=courselink:1")

	mustExecute(t, db, "member", "remove", "--user", "8", "--course", "2", "--via", "cohort")
	state = mustExecute(t, db, "state", "--check")
	assert.NotContains(t, state, "course=3 user=8")
	assert.Contains(t, state, "course=2 user=8 role=3 via=manual")
}

func TestMember_ReservedVia(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "member", "add", "--user", "8", "--course", "2", "--via", "courselink")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLinkDisableEnableRemove(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)
	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2", "--name", "Algebra stream")

	out := mustExecute(t, db, "link", "disable", "1")
	assert.Contains(t, out, "Link 1 disabled, 1 applied")
	assert.NotContains(t, mustExecute(t, db, "state"), "via=courselink:1")

	out = mustExecute(t, db, "link", "enable", "1")
	assert.Contains(t, out, "Link 1 enabled, 2 applied")

	list := mustExecute(t, db, "link", "list", "--parent", "3")
	assert.Contains(t, list, "1\t2 -> 3\tenabled\tAlgebra stream")

	mustExecute(t, db, "link", "remove", "1")
	state := mustExecute(t, db, "state", "--check")
	assert.NotContains(t, state, "courselink:1")
	assert.Contains(t, mustExecute(t, db, "link", "list"), "No links.")

	_, err := execute(t, "--db", db, "link", "remove", "1")
	require.Error(t, err)
	_, err = execute(t, "--db", db, "link", "disable", "abc")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLinkTargets(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)
	mustExecute(t, db, "course", "add", "4", "--name", "Geometry", "--hidden")

	out := mustExecute(t, db, "link", "targets", "--parent", "3")
	assert.Contains(t, out, "2\tALG\tAlgebra")
	assert.NotContains(t, out, "Geometry")

	out = mustExecute(t, db, "link", "targets", "--parent", "3", "--hidden")
	assert.Contains(t, out, "Geometry")

	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")
	out = mustExecute(t, db, "link", "targets", "--parent", "3")
	assert.Contains(t, out, "No course can be linked.")
}

func TestCourseDelete_RetiresLinks(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)
	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")

	mustExecute(t, db, "course", "delete", "2")
	state := mustExecute(t, db, "state", "--check")
	assert.NotContains(t, state, "->")
	assert.NotContains(t, state, "user=7")

	list := mustExecute(t, db, "course", "list")
	assert.Contains(t, list, "3\tMATH\tMathematics\tvisible")
	assert.NotContains(t, list, "Algebra")
}

func TestReconcile_DryRunThenApply(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)
	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")

	// Enrol with the mechanism disabled so nothing propagates.
	disabled := writeConfig(t, "database: "+db+"\nenabled: false\n")
	_, err := execute(t, "--config", disabled, "member", "add", "--user", "9", "--course", "2")
	require.NoError(t, err)

	out := mustExecute(t, db, "--format", "json", "reconcile", "--dry-run")
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Scope   string           `json:"scope"`
			Changes []map[string]any `json:"changes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "all", resp.Data.Scope)
	require.Len(t, resp.Data.Changes, 1)
	assert.Equal(t, "membership_add", resp.Data.Changes[0]["pass"])
	assert.EqualValues(t, 9, resp.Data.Changes[0]["user"])

	out = mustExecute(t, db, "reconcile", "--link", "1")
	assert.Contains(t, out, "Reconciled link:1: 1 applied, 0 failed")
	assert.Contains(t, out, "membership_add")

	out = mustExecute(t, db, "reconcile", "--dry-run")
	assert.Contains(t, out, "Nothing to do (all)")
}

func TestReconcile_ScopeFlags(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "reconcile", "--link", "1", "--course", "3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestReconcile_DisabledPurgesRoles(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)
	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")

	disabled := writeConfig(t, "database: "+db+"\nenabled: false\n")
	out, err := execute(t, "--config", disabled, "reconcile")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 applied")

	state := mustExecute(t, db, "state")
	assert.Contains(t, state, "course=3 user=7 via=courselink:1")
	assert.NotContains(t, state, "course=3 user=7 role=5")
}

func TestConfigValidate(t *testing.T) {
	valid := writeConfig(t, "database: test.db\nnosync_roles: \"6, 8\"\nreconcile_interval: 30m\n")
	out, err := execute(t, "config", "validate", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	invalid := writeConfig(t, "database: test.db\nnosync_roles: \"6, x\"\nlog:\n  level: loud\n")
	out, err = execute(t, "--format", "json", "config", "validate", invalid)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ConfigCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Valid)
	assert.NotEmpty(t, resp.Data.Errors)

	_, err = execute(t, "config", "validate")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigValidate_PolicyOnlyInLint(t *testing.T) {
	path := writeConfig(t, "database: test.db\nnosync_roles: \"6, x\"\n")
	out, err := execute(t, "config", "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "nosync_roles")
}

func TestScenarioCommand(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	out, err := execute(t, "scenario", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ role_follows_membership")
	assert.Contains(t, out, "0 failed")

	out, err = execute(t, "scenario", dir,
		"--filter", "role_follows_*",
		"--golden-dir", filepath.Join("..", "harness", "testdata", "golden"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioCommand_UpdateWritesGolden(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")
	golden := t.TempDir()

	_, err := execute(t, "scenario", dir, "--filter", "chain_*", "--golden-dir", golden, "--update")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(golden, "chain_no_cascade.golden"))

	_, err = execute(t, "scenario", dir, "--filter", "chain_*", "--golden-dir", golden)
	require.NoError(t, err)
}

func TestScenarioCommand_Errors(t *testing.T) {
	_, err := execute(t, "scenario", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "scenario", t.TempDir(), "--update")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))
	out, err := execute(t, "scenario", dir)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load scenario")
}

func TestServe_StopsOnCancel(t *testing.T) {
	db := tempDB(t)
	seedCourses(t, db)
	mustExecute(t, db, "link", "add", "--parent", "3", "--child", "2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := executeContext(t, ctx, "--db", db, "serve", "--metrics-listen", "127.0.0.1:0")
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServe_RejectsShortInterval(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "serve", "--interval", "1s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
