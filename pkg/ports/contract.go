package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewire/botcore/pkg/domain"
)

// RunStateStoreContract verifies that a StateStore implementation adheres
// to the interface contract. Adapters call it from their own tests.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	userID := "contract-user-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewConversationState("awaiting_amount")
		state.StateData["pair"] = "EURUSD"
		state.StateData["step"] = 2

		err := store.Save(ctx, userID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, userID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.CurrentState, loaded.CurrentState)
		assert.Equal(t, "EURUSD", loaded.StateData["pair"])
		// JSON persistence may turn ints into floats; presence is enough.
		assert.NotNil(t, loaded.StateData["step"])
	})

	t.Run("Load Idle User", func(t *testing.T) {
		_, err := store.Load(ctx, "idle-"+userID)
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})

	t.Run("Save Replaces", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, userID, domain.NewConversationState("first")))
		require.NoError(t, store.Save(ctx, userID, domain.NewConversationState("second")))

		loaded, err := store.Load(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.CurrentState)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, userID, domain.NewConversationState("awaiting_amount")))

		err := store.Delete(ctx, userID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, userID)
		assert.ErrorIs(t, err, domain.ErrStateNotFound, "Load after Delete should return ErrStateNotFound")
	})

	t.Run("Delete Idle User", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "idle-"+userID))
	})

	t.Run("List", func(t *testing.T) {
		id1 := userID + "-1"
		id2 := userID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewConversationState("a")))
		require.NoError(t, store.Save(ctx, id2, domain.NewConversationState("b")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		users, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, users, id1)
		assert.Contains(t, users, id2)
	})
}

// RunEventQueueContract verifies that an EventQueue implementation adheres
// to the interface contract. The queue must be empty and have capacity for
// at least 16 events.
func RunEventQueueContract(t *testing.T, q EventQueue) {
	ctx := context.Background()

	t.Run("FIFO Exactly Once", func(t *testing.T) {
		const n = 10
		for i := 0; i < n; i++ {
			evt := domain.NewEvent("message", fmt.Sprintf("user-%d", i), []byte(fmt.Sprintf("payload-%d", i)))
			require.NoError(t, q.Enqueue(ctx, evt))
		}

		seen := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			evt, err := q.Dequeue(ctx, time.Second)
			require.NoError(t, err)
			assert.False(t, seen[evt.ID], "event %s delivered twice", evt.ID)
			seen[evt.ID] = true
			assert.Equal(t, fmt.Sprintf("user-%d", i), evt.UserID, "FIFO order violated at %d", i)
		}
		assert.Len(t, seen, n)
	})

	t.Run("Empty Queue Times Out", func(t *testing.T) {
		_, err := q.Dequeue(ctx, 50*time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrNoEvent)
	})

	t.Run("Len", func(t *testing.T) {
		require.NoError(t, q.Enqueue(ctx, domain.NewEvent("message", "len-user", nil)))

		n, err := q.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = q.Dequeue(ctx, time.Second)
		require.NoError(t, err)

		n, err = q.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Payload Roundtrip", func(t *testing.T) {
		in := domain.NewEvent("callback", "rt-user", []byte(`{"cmd":"/cancel"}`))
		require.NoError(t, q.Enqueue(ctx, in))

		out, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, in.ID, out.ID)
		assert.Equal(t, in.Type, out.Type)
		assert.Equal(t, in.UserID, out.UserID)
		assert.Equal(t, in.Payload, out.Payload)
	})
}
