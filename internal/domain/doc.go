// Package domain defines the data model shared by the course link engine,
// its storage adapters and its tests.
//
// A LinkInstance is a directed edge child -> parent. Membership and role
// records carry an Origin: either foreign (any mechanism other than this
// engine) or link-tagged (created and owned by this engine for one link).
// The engine maintains, eventually, for every enabled link L: C -> P:
//
//   - a user has a link-tagged membership in P (tag L) iff the user has at
//     least one foreign membership in C
//   - a user holds a link-tagged role R in P's context (tag L) iff the user
//     holds a foreign assignment of R in C's context and R is not excluded
//
// # Ports
//
// The engine depends only on the interfaces in ports.go. internal/store
// implements them on SQLite; internal/testutil implements them in memory.
package domain
