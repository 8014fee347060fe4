// Package conversation implements the per-user conversation state machine.
// A fixed registry of named state definitions is built at startup; the
// machine routes each inbound event to the active state's handler and
// persists the transition the handler returns.
package conversation
