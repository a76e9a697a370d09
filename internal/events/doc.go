// Package events delivers platform change notifications to the engine.
//
// Bus is an unbounded FIFO with a single dispatcher goroutine. Handling a
// notification usually writes to the store, and those writes publish
// notifications of their own; the queue never blocks a publisher, so
// cascades cannot deadlock. The engine recognizes its own writes by origin
// and ignores them.
//
// NotifyingStore decorates a store so that every write that changed state
// publishes the matching event. The platform side of the system (CLI
// commands, the serve loop) writes through it.
package events
