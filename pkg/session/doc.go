// Package session serializes event processing per user. All events for one
// user run strictly in arrival order while different users stay fully
// parallel. With a DistributedLocker configured the serialization extends
// across replicas.
package session
