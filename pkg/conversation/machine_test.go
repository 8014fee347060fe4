package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewire/botcore/pkg/adapters/memory"
	"github.com/tradewire/botcore/pkg/conversation"
	"github.com/tradewire/botcore/pkg/domain"
)

// scriptedState is a configurable StateDefinition for tests.
type scriptedState struct {
	name       string
	entryText  string
	entryErr   error
	entryCalls int

	handle func(evt domain.Event, state *domain.ConversationState) (string, error)
}

func (s *scriptedState) Name() string { return s.name }

func (s *scriptedState) EntryMessage(ctx context.Context, userID string) (string, error) {
	s.entryCalls++
	return s.entryText, s.entryErr
}

func (s *scriptedState) HandleUpdate(ctx context.Context, evt domain.Event, state *domain.ConversationState) (string, error) {
	if s.handle == nil {
		return s.name, nil
	}
	return s.handle(evt, state)
}

// recordingMessenger captures entry messages sent to users.
type recordingMessenger struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMessenger) SendMessage(ctx context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, userID+":"+text)
	return nil
}

func newTestMachine(t *testing.T, defs ...conversation.StateDefinition) (*conversation.Machine, *memory.Store, *recordingMessenger) {
	t.Helper()

	registry := conversation.NewRegistry()
	for _, def := range defs {
		require.NoError(t, registry.Register(def))
	}
	registry.Freeze()

	store := memory.NewStore()
	messenger := &recordingMessenger{}
	machine := conversation.NewMachine(registry, store, conversation.WithMessenger(messenger))
	return machine, store, messenger
}

func TestMachine_SetState_PersistsAndAnnounces(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{name: "awaiting_amount", entryText: "Enter the amount:"}
	machine, store, messenger := newTestMachine(t, state)

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_amount"))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_amount", loaded.CurrentState)
	assert.Empty(t, loaded.StateData)

	assert.Equal(t, 1, state.entryCalls, "exactly one entry-message call expected")
	assert.Equal(t, []string{"u1:Enter the amount:"}, messenger.sent)
}

func TestMachine_SetState_UnknownNameClears(t *testing.T) {
	ctx := context.Background()
	known := &scriptedState{name: "awaiting_amount"}
	machine, store, _ := newTestMachine(t, known)

	var fallbackUser, fallbackName string
	registry := conversation.NewRegistry()
	require.NoError(t, registry.Register(known))
	registry.Freeze()
	machine = conversation.NewMachine(registry, store, conversation.WithUnknownStateHook(func(userID, name string) {
		fallbackUser, fallbackName = userID, name
	}))

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_amount"))
	require.NoError(t, machine.SetState(ctx, "u1", "no_such_state"))

	_, err := store.Load(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrStateNotFound, "unknown name must clear, not persist")
	assert.Equal(t, "u1", fallbackUser)
	assert.Equal(t, "no_such_state", fallbackName)
}

func TestMachine_SetState_EntryFailureDoesNotBlockTransition(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{name: "awaiting_amount", entryErr: errors.New("template broken")}
	machine, store, messenger := newTestMachine(t, state)

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_amount"))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_amount", loaded.CurrentState)
	assert.Empty(t, messenger.sent)
}

func TestMachine_SetState_MessengerFailureDoesNotBlockTransition(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{name: "awaiting_amount", entryText: "hi"}
	machine, store, messenger := newTestMachine(t, state)
	messenger.err = errors.New("network down")

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_amount"))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_amount", loaded.CurrentState)
}

func TestMachine_ProcessUpdate_IdleIsNoOp(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{name: "awaiting_amount"}
	machine, _, _ := newTestMachine(t, state)

	err := machine.ProcessUpdate(ctx, "idle-user", domain.NewEvent("message", "idle-user", nil))
	assert.NoError(t, err)
}

func TestMachine_ProcessUpdate_StaySameState(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{
		name:      "awaiting_amount",
		entryText: "Enter the amount:",
		handle: func(evt domain.Event, st *domain.ConversationState) (string, error) {
			st.StateData["last_input"] = string(evt.Payload)
			return "awaiting_amount", nil
		},
	}
	machine, store, _ := newTestMachine(t, state)

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_amount"))
	require.NoError(t, machine.ProcessUpdate(ctx, "u1", domain.NewEvent("message", "u1", []byte("not a number"))))

	// Staying must not re-trigger the entry message...
	assert.Equal(t, 1, state.entryCalls)

	// ...but must persist accumulated state data.
	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "not a number", loaded.StateData["last_input"])
}

func TestMachine_ProcessUpdate_AdvanceAnnouncesNewState(t *testing.T) {
	ctx := context.Background()
	first := &scriptedState{
		name:      "awaiting_pair",
		entryText: "Which pair?",
		handle: func(evt domain.Event, st *domain.ConversationState) (string, error) {
			return "awaiting_amount", nil
		},
	}
	second := &scriptedState{name: "awaiting_amount", entryText: "Enter the amount:"}
	machine, store, messenger := newTestMachine(t, first, second)

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_pair"))
	require.NoError(t, machine.ProcessUpdate(ctx, "u1", domain.NewEvent("message", "u1", []byte("EURUSD"))))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_amount", loaded.CurrentState)

	assert.Equal(t, 1, second.entryCalls, "advancing must announce the new state")
	assert.Equal(t, []string{"u1:Which pair?", "u1:Enter the amount:"}, messenger.sent)
}

func TestMachine_ProcessUpdate_EmptyClearsConversation(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{
		name: "awaiting_input",
		handle: func(evt domain.Event, st *domain.ConversationState) (string, error) {
			return "", nil // conversation complete
		},
	}
	machine, store, _ := newTestMachine(t, state)

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_input"))
	require.NoError(t, machine.ProcessUpdate(ctx, "u1", domain.NewEvent("message", "u1", []byte("/cancel"))))

	_, err := store.Load(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	// Subsequent updates are no-ops (user is idle again).
	require.NoError(t, machine.ProcessUpdate(ctx, "u1", domain.NewEvent("message", "u1", []byte("anything"))))
}

func TestMachine_ProcessUpdate_HandlerErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("downstream API unavailable")
	state := &scriptedState{
		name: "awaiting_amount",
		handle: func(evt domain.Event, st *domain.ConversationState) (string, error) {
			return "", boom
		},
	}
	machine, store, _ := newTestMachine(t, state)

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_amount"))

	err := machine.ProcessUpdate(ctx, "u1", domain.NewEvent("message", "u1", nil))
	assert.ErrorIs(t, err, boom)

	// The state survives so the event can be retried safely.
	loaded, lerr := store.Load(ctx, "u1")
	require.NoError(t, lerr)
	assert.Equal(t, "awaiting_amount", loaded.CurrentState)
}

func TestMachine_ProcessUpdate_StaleStoredStateClears(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{name: "awaiting_amount"}
	machine, store, _ := newTestMachine(t, state)

	// Simulate a record written by a deployment that knew more states.
	require.NoError(t, store.Save(ctx, "u1", domain.NewConversationState("removed_state")))

	require.NoError(t, machine.ProcessUpdate(ctx, "u1", domain.NewEvent("message", "u1", nil)))

	_, err := store.Load(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMachine_ClearState(t *testing.T) {
	ctx := context.Background()
	state := &scriptedState{name: "awaiting_amount"}
	machine, store, _ := newTestMachine(t, state)

	require.NoError(t, machine.SetState(ctx, "u1", "awaiting_amount"))
	require.NoError(t, machine.ClearState(ctx, "u1"))

	_, err := store.Load(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	// Clearing an idle user is fine.
	assert.NoError(t, machine.ClearState(ctx, "u1"))
}
