package domain

import "time"

// ConversationState is the per-user record of which multi-step flow is
// active and the data it has accumulated so far. A user with no stored
// record is idle; idle is never persisted as an empty state.
type ConversationState struct {
	// CurrentState is the registered name of the active state.
	CurrentState string `json:"current_state"`

	// StateData holds transient flow data accumulated across updates.
	// Reset on every transition into a state.
	StateData map[string]any `json:"state_data"`

	// UpdatedAt is when the record was last persisted.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates a fresh record for a transition into name.
func NewConversationState(name string) *ConversationState {
	return &ConversationState{
		CurrentState: name,
		StateData:    make(map[string]any),
		UpdatedAt:    time.Now().UTC(),
	}
}

// Clone returns a deep copy so callers cannot mutate stored state through
// a shared map reference.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.StateData = make(map[string]any, len(s.StateData))
	for k, v := range s.StateData {
		cp.StateData[k] = v
	}
	return &cp
}
