package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tradewire/botcore/pkg/domain"
)

// StateDefinition is a named, stateless handler unit for one conversation
// state. Implementations hold no per-user data; everything per-user lives
// in the ConversationState record passed to HandleUpdate.
type StateDefinition interface {
	// Name is the registered state name. Must be unique and non-empty.
	Name() string

	// EntryMessage produces the text announced to the user on entering
	// the state. Empty text means nothing is sent.
	EntryMessage(ctx context.Context, userID string) (string, error)

	// HandleUpdate processes one event for a user currently in this
	// state. It may read and mutate state.StateData. It returns the next
	// state name: the same name to stay, a different registered name to
	// advance, or "" to end the conversation.
	HandleUpdate(ctx context.Context, evt domain.Event, state *domain.ConversationState) (next string, err error)
}

// Registry holds the set of state definitions, fixed at process start.
// Register during wiring, then Freeze before serving.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	defs   map[string]StateDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]StateDefinition),
	}
}

// Register adds a definition. It fails on empty or duplicate names and
// after Freeze.
func (r *Registry) Register(def StateDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", def.Name())
	}
	name := def.Name()
	if name == "" {
		return fmt.Errorf("state definition has empty name")
	}
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("state %q already registered", name)
	}
	r.defs[name] = def
	return nil
}

// MustRegister is Register that panics, for wiring code.
func (r *Registry) MustRegister(def StateDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Freeze seals the registry. After Freeze the definition set is immutable
// and Lookup needs no synchronization.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup resolves a state name.
func (r *Registry) Lookup(name string) (StateDefinition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered state names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
