package ports

import (
	"context"

	"github.com/tradewire/botcore/pkg/domain"
)

// StateStore persists per-user conversation state. A user with no record
// is idle; implementations return domain.ErrStateNotFound for idle users
// rather than an empty record.
type StateStore interface {
	// Save persists the state for a user, replacing any previous record.
	Save(ctx context.Context, userID string, state *domain.ConversationState) error

	// Load retrieves the state for a user.
	// Returns domain.ErrStateNotFound if the user is idle.
	Load(ctx context.Context, userID string) (*domain.ConversationState, error)

	// Delete removes the user's record. Deleting an idle user is a no-op.
	Delete(ctx context.Context, userID string) error

	// List returns the IDs of users with active conversations.
	List(ctx context.Context) ([]string, error)
}
