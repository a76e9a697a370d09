package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/courselink/internal/testutil"
)

// checkExpectations compares the final state with expect and checks the
// link invariant. Mismatches are added to the result; only failures to
// read state are returned.
func (h *Harness) checkExpectations(ctx context.Context, expect Expect) error {
	state := h.result.State
	h.compare("links", expect.Links, state.Links)
	h.compare("memberships", expect.Memberships, state.Memberships)
	h.compare("roles", expect.Roles, state.Roles)

	violations, err := testutil.CheckInvariant(ctx, h.backend, h.policy.Current().IsRoleExcluded, h.engine.Enabled())
	if err != nil {
		return fmt.Errorf("check invariant: %w", err)
	}
	for _, v := range violations {
		h.result.AddError("invariant: " + v)
	}
	return nil
}

func (h *Harness) compare(section string, want, got []string) {
	if want == nil {
		return
	}
	missing := subtract(want, got)
	extra := subtract(got, want)
	if len(missing) == 0 && len(extra) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s mismatch:", section)
	for _, m := range missing {
		fmt.Fprintf(&b, "\n  missing: %s", m)
	}
	for _, e := range extra {
		fmt.Fprintf(&b, "\n  unexpected: %s", e)
	}
	h.result.AddError(b.String())
}

func subtract(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}
