// Package harness runs YAML sync scenarios end to end.
//
// A scenario declares courses, links, memberships and roles, then runs
// steps: platform writes (enrol, grant, delete_course, ...), link
// administration (create_link, disable_link, ...) and explicit
// reconciliations. Platform writes go through events.NotifyingStore, so
// the engine sees them exactly as in production, and the events are
// dispatched before the next step.
//
// After the last step the harness captures the store, compares it with
// the scenario's expect block and checks the link invariant. Golden files
// snapshot the final state together with the trace of steps and handled
// events.
//
// Example:
//
//	name: revoke_keeps_membership
//	description: Revoking a role keeps the propagated membership
//	courses: [{id: 2}, {id: 3}]
//	links: [{child: 2, parent: 3}]
//	memberships: [{user: 7, course: 2}]
//	roles: [{user: 7, role: 5, course: 2}]
//	steps:
//	  - {do: reconcile}
//	  - {do: revoke, user: 7, role: 5, course: 2}
//	expect:
//	  memberships: ["course=2 user=7 via=manual", "course=3 user=7 via=courselink:1"]
//	  roles: []
package harness
