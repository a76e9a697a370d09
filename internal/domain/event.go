package domain

import "fmt"

// EventKind identifies a SyncEvent.
type EventKind int

const (
	// RoleGranted: a role was assigned in some context.
	RoleGranted EventKind = iota + 1
	// RoleRevoked: a role was unassigned in some context.
	RoleRevoked
	// MemberAdded: a user was enrolled in a course.
	MemberAdded
	// MemberRemoved: a user was unenrolled from a course.
	MemberRemoved
	// CourseRemoved: a course was deleted.
	CourseRemoved
	// CourseUpdated: course settings changed.
	CourseUpdated
)

var eventKindNames = map[EventKind]string{
	RoleGranted:   "role_granted",
	RoleRevoked:   "role_revoked",
	MemberAdded:   "member_added",
	MemberRemoved: "member_removed",
	CourseRemoved: "course_removed",
	CourseUpdated: "course_updated",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for k, name := range eventKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is one ephemeral state-change notification. Fields not relevant to
// the kind are zero: role events use Context and RoleID, membership and
// course events use CourseID.
type Event struct {
	Kind     EventKind
	UserID   UserID
	CourseID CourseID
	RoleID   RoleID
	Context  Context
	Origin   Origin
}

// RoleGrantedEvent builds a RoleGranted event.
func RoleGrantedEvent(user UserID, role RoleID, ctx Context, origin Origin) Event {
	return Event{Kind: RoleGranted, UserID: user, RoleID: role, Context: ctx, Origin: origin}
}

// RoleRevokedEvent builds a RoleRevoked event.
func RoleRevokedEvent(user UserID, role RoleID, ctx Context, origin Origin) Event {
	return Event{Kind: RoleRevoked, UserID: user, RoleID: role, Context: ctx, Origin: origin}
}

// MemberAddedEvent builds a MemberAdded event.
func MemberAddedEvent(user UserID, course CourseID, origin Origin) Event {
	return Event{Kind: MemberAdded, UserID: user, CourseID: course, Origin: origin}
}

// MemberRemovedEvent builds a MemberRemoved event.
func MemberRemovedEvent(user UserID, course CourseID, origin Origin) Event {
	return Event{Kind: MemberRemoved, UserID: user, CourseID: course, Origin: origin}
}

// CourseRemovedEvent builds a CourseRemoved event.
func CourseRemovedEvent(course CourseID) Event {
	return Event{Kind: CourseRemoved, CourseID: course}
}

// CourseUpdatedEvent builds a CourseUpdated event.
func CourseUpdatedEvent(course CourseID) Event {
	return Event{Kind: CourseUpdated, CourseID: course}
}

func (e Event) String() string {
	switch e.Kind {
	case RoleGranted, RoleRevoked:
		return fmt.Sprintf("%s user=%d role=%d context=%s origin=%s", e.Kind, e.UserID, e.RoleID, e.Context, e.Origin)
	case MemberAdded, MemberRemoved:
		return fmt.Sprintf("%s user=%d course=%d origin=%s", e.Kind, e.UserID, e.CourseID, e.Origin)
	default:
		return fmt.Sprintf("%s course=%d", e.Kind, e.CourseID)
	}
}
