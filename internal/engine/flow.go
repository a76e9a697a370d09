package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/courselink/internal/domain"
)

// RunIDGenerator produces correlation ids for reconciliation runs.
// Implemented by UUIDv7Generator (production) and
// testutil.FixedRunIDGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids, so runs sort by
// start time in logs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

type lockKey struct {
	user domain.UserID
	link domain.LinkID
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// pairLocks serializes mutations for the same (user, link) pair inside one
// process. Read-then-write sequences such as the revoke guard run under the
// pair lock; storage uniqueness covers writers in other processes.
type pairLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*refMutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[lockKey]*refMutex)}
}

// Lock blocks until the pair is free and returns the unlock function.
func (p *pairLocks) Lock(user domain.UserID, link domain.LinkID) func() {
	k := lockKey{user, link}

	p.mu.Lock()
	m, ok := p.locks[k]
	if !ok {
		m = &refMutex{}
		p.locks[k] = m
	}
	m.refs++
	p.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		p.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(p.locks, k)
		}
		p.mu.Unlock()
	}
}

// Len returns the number of pairs currently locked or waited on.
func (p *pairLocks) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
