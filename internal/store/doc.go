// Package store provides the SQLite adapter for every port in
// internal/domain: courses, the link registry, memberships and role
// assignments.
//
// # Critical Patterns
//
// Row-level serialization
//   - UNIQUE(user_id, course_id, component, link_id) on memberships
//   - UNIQUE(user_id, role_id, context_level, instance_id, component, link_id)
//     on role_assignments
//   - Inserts use ON CONFLICT DO NOTHING, so concurrent add/add races leave
//     exactly one row and add/remove races leave one of the two end states
//
// Ownership
//   - Link operations match on component AND link_id, so a link-tagged
//     delete can never hit a foreign row
//   - Foreign origins may not use the engine's component name
//
// Set queries
//   - DesiredLinkMembers/DesiredLinkRoles are joins over link_instances,
//     CurrentLinkMembers/CurrentLinkRoles are plain scans of link-tagged rows
//   - All queries ORDER BY their key columns so results are deterministic
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
