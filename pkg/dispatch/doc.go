// Package dispatch is the inbound-event pipeline: a circuit-breaking
// puller over the event queue, a semaphore-bounded dispatcher that fans
// admitted events out to detached workers, and a per-event retry executor
// that escalates exhausted events to the operator channel.
package dispatch
