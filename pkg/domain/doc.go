// Package domain contains the core types shared by the event pipeline and
// the conversation state machine: inbound events, per-user conversation
// state, and the error taxonomy the pipeline layers agree on.
package domain
