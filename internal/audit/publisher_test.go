package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitAssignsIDAndTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	err := pub.Emit(context.Background(), Entry{
		MasterAccountID: "acct-1",
		ActionType:      ActionOwnershipAdded,
		PerformedBy:     "admin-1",
	})
	require.NoError(t, err)

	entries, err := pub.List(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEqual(t, uuid.Nil, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestEmitMirrorsWithoutBlocking(t *testing.T) {
	store := NewInMemoryStore()
	mirror := make(chan Entry, 1)
	pub := NewPublisher(store, WithMirror(mirror))

	require.NoError(t, pub.Emit(context.Background(), Entry{MasterAccountID: "a", ActionType: ActionRoleAssigned}))
	// Channel now full; a second emit must not block even though nothing drains.
	require.NoError(t, pub.Emit(context.Background(), Entry{MasterAccountID: "a", ActionType: ActionRoleAssigned}))

	entries, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "store keeps every entry even when the mirror drops")

	select {
	case got := <-mirror:
		assert.Equal(t, ActionRoleAssigned, got.ActionType)
	case <-time.After(time.Second):
		t.Fatal("expected one mirrored entry")
	}
}
