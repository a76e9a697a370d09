// Package policy implements the no-sync role policy: the set of role kinds
// that are never propagated from a child course to its parents.
package policy

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/roach88/courselink/internal/domain"
)

// NoSync is an immutable set of excluded roles.
type NoSync struct {
	excluded map[domain.RoleID]struct{}
}

// NewNoSync builds a policy excluding roles.
func NewNoSync(roles ...domain.RoleID) *NoSync {
	p := &NoSync{excluded: make(map[domain.RoleID]struct{}, len(roles))}
	for _, r := range roles {
		p.excluded[r] = struct{}{}
	}
	return p
}

// IsRoleExcluded reports whether role must not be propagated.
// A nil policy excludes nothing.
func (p *NoSync) IsRoleExcluded(role domain.RoleID) bool {
	if p == nil {
		return false
	}
	_, ok := p.excluded[role]
	return ok
}

// Roles returns the excluded roles in ascending order.
func (p *NoSync) Roles() []domain.RoleID {
	if p == nil {
		return []domain.RoleID{}
	}
	out := make([]domain.RoleID, 0, len(p.excluded))
	for r := range p.excluded {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse reads a comma separated list of role ids ("3, 5,7"). Empty items
// are ignored.
func Parse(csv string) (*NoSync, error) {
	var roles []domain.RoleID
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid role id %q in no-sync list", item)
		}
		roles = append(roles, domain.RoleID(id))
	}
	return NewNoSync(roles...), nil
}

// ParseOrEmpty is Parse that fails open: a malformed list excludes nothing
// and is reported to logger. A nil logger drops the warning.
func ParseOrEmpty(csv string, logger *slog.Logger) *NoSync {
	p, err := Parse(csv)
	if err != nil {
		if logger == nil {
			return NewNoSync()
		}
		logger.Warn("no-sync policy misconfigured, excluding nothing",
			"value", csv,
			"error", err,
		)
		return NewNoSync()
	}
	return p
}

// Source hands out the current policy. Updates are visible to the next
// caller; nothing already applied is rewritten.
type Source struct {
	current atomic.Pointer[NoSync]
}

// NewSource creates a Source holding p.
func NewSource(p *NoSync) *Source {
	s := &Source{}
	if p == nil {
		p = NewNoSync()
	}
	s.current.Store(p)
	return s
}

// Current returns the policy in effect.
func (s *Source) Current() *NoSync {
	if s == nil {
		return nil
	}
	return s.current.Load()
}

// Set replaces the policy.
func (s *Source) Set(p *NoSync) {
	if p == nil {
		p = NewNoSync()
	}
	s.current.Store(p)
}

// SetCSV parses csv with ParseOrEmpty and installs the result.
func (s *Source) SetCSV(csv string, logger *slog.Logger) {
	s.Set(ParseOrEmpty(csv, logger))
}
