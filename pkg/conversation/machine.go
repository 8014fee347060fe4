package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tradewire/botcore/internal/logging"
	"github.com/tradewire/botcore/pkg/domain"
	"github.com/tradewire/botcore/pkg/ports"
)

// Messenger forwards a state's entry message to the user. It is an
// external collaborator (the chat transport); the machine only calls it
// when a transition produces text.
type Messenger interface {
	SendMessage(ctx context.Context, userID, text string) error
}

// Machine drives per-user conversations. On each event it routes to the
// active state's handler and persists whatever transition the handler
// returns. A handler error leaves the stored state untouched, so the
// caller can safely retry the same event.
type Machine struct {
	registry  *Registry
	store     ports.StateStore
	messenger Messenger
	logger    *slog.Logger

	// onUnknownState is invoked when a transition names an unregistered
	// state (observability hook).
	onUnknownState func(userID, name string)
}

// MachineOption configures the Machine.
type MachineOption func(*Machine)

// WithMessenger sets the entry-message transport.
func WithMessenger(m Messenger) MachineOption {
	return func(machine *Machine) {
		machine.messenger = m
	}
}

// WithLogger sets the machine's logger.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(machine *Machine) {
		machine.logger = logger
	}
}

// WithUnknownStateHook registers a callback fired on the unknown-state
// fallback path.
func WithUnknownStateHook(hook func(userID, name string)) MachineOption {
	return func(machine *Machine) {
		machine.onUnknownState = hook
	}
}

// NewMachine creates a machine over a frozen registry and a state store.
func NewMachine(registry *Registry, store ports.StateStore, opts ...MachineOption) *Machine {
	m := &Machine{
		registry: registry,
		store:    store,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetState transitions the user into the named state. An unregistered name
// clears the user's state instead (defensive fallback, never an error to
// the caller). Store failures propagate so the caller's retry policy
// applies. Entry-message failures are logged but do not block the
// transition.
func (m *Machine) SetState(ctx context.Context, userID, name string) error {
	def, ok := m.registry.Lookup(name)
	if !ok {
		m.logger.Error("unknown conversation state, returning user to idle",
			"user_id", userID,
			"state", name,
		)
		if m.onUnknownState != nil {
			m.onUnknownState(userID, name)
		}
		return m.ClearState(ctx, userID)
	}

	state := domain.NewConversationState(name)
	if err := m.store.Save(ctx, userID, state); err != nil {
		return fmt.Errorf("failed to persist state %q: %w", name, err)
	}

	m.announce(ctx, def, userID)
	return nil
}

// announce delivers the state's entry message, best-effort.
func (m *Machine) announce(ctx context.Context, def StateDefinition, userID string) {
	text, err := def.EntryMessage(ctx, userID)
	if err != nil {
		m.logger.Warn("entry message producer failed",
			"user_id", userID,
			"state", def.Name(),
			"err", err,
		)
		return
	}
	if text == "" || m.messenger == nil {
		return
	}
	if err := m.messenger.SendMessage(ctx, userID, text); err != nil {
		m.logger.Warn("failed to deliver entry message",
			"user_id", userID,
			"state", def.Name(),
			"err", err,
		)
	}
}

// ProcessUpdate routes one event to the user's active state handler.
// Idle users are a no-op. The handler's return value drives the
// transition: same name stays (without re-announcing), a different name
// runs SetState so the new state announces itself, empty clears.
func (m *Machine) ProcessUpdate(ctx context.Context, userID string, evt domain.Event) error {
	state, err := m.store.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrStateNotFound) {
			return nil // idle, nothing to do
		}
		return fmt.Errorf("failed to load state: %w", err)
	}

	def, ok := m.registry.Lookup(state.CurrentState)
	if !ok {
		// A state persisted by an older deployment that no longer exists.
		m.logger.Error("stored conversation state is not registered, returning user to idle",
			"user_id", userID,
			"state", state.CurrentState,
		)
		if m.onUnknownState != nil {
			m.onUnknownState(userID, state.CurrentState)
		}
		return m.ClearState(ctx, userID)
	}

	next, err := def.HandleUpdate(ctx, evt, state)
	if err != nil {
		// Stored state is untouched; the retry executor may resend the
		// identical event.
		return fmt.Errorf("state %q handler: %w", state.CurrentState, err)
	}

	switch next {
	case "":
		return m.ClearState(ctx, userID)
	case state.CurrentState:
		// Stay: persist accumulated StateData, no re-entry announcement.
		if err := m.store.Save(ctx, userID, state); err != nil {
			return fmt.Errorf("failed to persist state data: %w", err)
		}
		return nil
	default:
		return m.SetState(ctx, userID, next)
	}
}

// ClearState removes the user's record entirely, returning them to idle.
func (m *Machine) ClearState(ctx context.Context, userID string) error {
	if err := m.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}
