package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/courselink/internal/domain"
)

// Scenario is a self-contained sync test: an initial platform state, a
// sequence of steps, and the expected final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Disabled starts the engine with the mechanism globally disabled.
	Disabled bool `yaml:"disabled,omitempty"`

	// NoSyncRoles is the initial comma separated no-sync list.
	NoSyncRoles string `yaml:"nosync_roles,omitempty"`

	// Courses, Links, Memberships and Roles are written directly to the
	// store before any step runs. No events are published for them.
	Courses     []CourseSpec     `yaml:"courses"`
	Links       []LinkSpec       `yaml:"links,omitempty"`
	Memberships []MembershipSpec `yaml:"memberships,omitempty"`
	Roles       []RoleSpec       `yaml:"roles,omitempty"`

	// Steps run in order. Platform writes go through the notifying store
	// and their events are dispatched before the next step.
	Steps []Step `yaml:"steps"`

	// Expect is checked against the final state.
	Expect Expect `yaml:"expect"`
}

// CourseSpec declares a course.
type CourseSpec struct {
	ID      domain.CourseID `yaml:"id"`
	Name    string          `yaml:"name,omitempty"`
	Visible *bool           `yaml:"visible,omitempty"`
}

// LinkSpec declares a link. Links are numbered from 1 in declaration order.
type LinkSpec struct {
	Child    domain.CourseID `yaml:"child"`
	Parent   domain.CourseID `yaml:"parent"`
	Disabled bool            `yaml:"disabled,omitempty"`
	Name     string          `yaml:"name,omitempty"`
}

// MembershipSpec declares a membership. An empty Via is a manual
// enrolment; "link:N" is a record owned by link N.
type MembershipSpec struct {
	User   domain.UserID   `yaml:"user"`
	Course domain.CourseID `yaml:"course"`
	Via    string          `yaml:"via,omitempty"`
}

// RoleSpec declares a course-level role assignment. Via as for
// MembershipSpec.
type RoleSpec struct {
	User   domain.UserID   `yaml:"user"`
	Role   domain.RoleID   `yaml:"role"`
	Course domain.CourseID `yaml:"course"`
	Via    string          `yaml:"via,omitempty"`
}

// Step is one action. Which fields apply depends on Do.
type Step struct {
	// Do is one of the Step* constants.
	Do string `yaml:"do"`

	User   domain.UserID   `yaml:"user,omitempty"`
	Course domain.CourseID `yaml:"course,omitempty"`
	Role   domain.RoleID   `yaml:"role,omitempty"`
	Link   domain.LinkID   `yaml:"link,omitempty"`
	Child  domain.CourseID `yaml:"child,omitempty"`
	Via    string          `yaml:"via,omitempty"`

	// Scope for reconcile: "all" (default), "link:N" or "course:N".
	Scope string `yaml:"scope,omitempty"`

	// Value for set_enabled and set_nosync.
	Value string `yaml:"value,omitempty"`

	// ExpectError, when set, is a substring the step's error must contain.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step kinds.
const (
	StepEnrol        = "enrol"
	StepUnenrol      = "unenrol"
	StepGrant        = "grant"
	StepRevoke       = "revoke"
	StepReconcile    = "reconcile"
	StepCreateLink   = "create_link"
	StepEnableLink   = "enable_link"
	StepDisableLink  = "disable_link"
	StepRemoveLink   = "remove_link"
	StepDeleteCourse = "delete_course"
	StepUpdateCourse = "update_course"
	StepSetEnabled   = "set_enabled"
	StepSetNoSync    = "set_nosync"
)

// Expect lists the expected final records, in testutil.State format. A
// nil list is not checked. The link invariant is always checked.
type Expect struct {
	Links       []string `yaml:"links,omitempty"`
	Memberships []string `yaml:"memberships,omitempty"`
	Roles       []string `yaml:"roles,omitempty"`
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Courses) == 0 {
		return fmt.Errorf("courses list is required and must be non-empty")
	}

	for i, m := range s.Memberships {
		if _, err := parseVia(m.Via); err != nil {
			return fmt.Errorf("memberships[%d]: %w", i, err)
		}
	}
	for i, r := range s.Roles {
		if _, err := parseVia(r.Via); err != nil {
			return fmt.Errorf("roles[%d]: %w", i, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(st Step) error {
	if _, err := parseVia(st.Via); err != nil {
		return err
	}
	switch st.Do {
	case StepEnrol, StepUnenrol:
		if st.User == 0 || st.Course == 0 {
			return fmt.Errorf("%s needs user and course", st.Do)
		}
	case StepGrant, StepRevoke:
		if st.User == 0 || st.Role == 0 || st.Course == 0 {
			return fmt.Errorf("%s needs user, role and course", st.Do)
		}
	case StepReconcile:
		if _, err := parseScope(st.Scope); err != nil {
			return err
		}
	case StepCreateLink:
		if st.Child == 0 || st.Course == 0 {
			return fmt.Errorf("%s needs child and course", st.Do)
		}
	case StepEnableLink, StepDisableLink, StepRemoveLink:
		if st.Link == 0 {
			return fmt.Errorf("%s needs link", st.Do)
		}
	case StepDeleteCourse, StepUpdateCourse:
		if st.Course == 0 {
			return fmt.Errorf("%s needs course", st.Do)
		}
	case StepSetEnabled:
		if st.Value != "true" && st.Value != "false" {
			return fmt.Errorf("%s value must be true or false", st.Do)
		}
	case StepSetNoSync:
	case "":
		return fmt.Errorf("do is required")
	default:
		return fmt.Errorf("unknown step %q", st.Do)
	}
	return nil
}

// parseVia turns "" or "<component>" or "link:N" into an Origin.
func parseVia(via string) (domain.Origin, error) {
	var id int64
	if n, _ := fmt.Sscanf(via, "link:%d", &id); n == 1 {
		if id <= 0 {
			return domain.Origin{}, fmt.Errorf("invalid via %q", via)
		}
		return domain.LinkOrigin(domain.LinkID(id)), nil
	}
	if via == domain.LinkComponent {
		return domain.Origin{}, fmt.Errorf("via %q needs a link id (link:N)", via)
	}
	return domain.ForeignOrigin(via), nil
}

// parseScope turns "", "all", "link:N" or "course:N" into a Scope.
func parseScope(s string) (domain.Scope, error) {
	if s == "" || s == "all" {
		return domain.ScopeAll(), nil
	}
	var id int64
	if n, _ := fmt.Sscanf(s, "link:%d", &id); n == 1 && id > 0 {
		return domain.ScopeLink(domain.LinkID(id)), nil
	}
	if n, _ := fmt.Sscanf(s, "course:%d", &id); n == 1 && id > 0 {
		return domain.ScopeCourse(domain.CourseID(id)), nil
	}
	return domain.Scope{}, fmt.Errorf("invalid scope %q", s)
}
