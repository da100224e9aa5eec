//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/core"
)

func openMigratedStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openMigratedStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMigratedStore(t)

	missing, err := store.GetConversation(ctx, "42")
	require.NoError(t, err)
	require.Nil(t, missing)

	updated := time.Date(2024, 5, 1, 12, 30, 0, 123e6, time.UTC)
	state := &core.ConversationState{
		UserID:       "42",
		Summary:      "Likes hiking.",
		Buffer:       []string{"User: hi\n", "Assistant: hello\n"},
		PendingCount: 1,
		LastUpdated:  updated,
	}
	require.NoError(t, store.UpsertConversation(ctx, state))

	got, err := store.GetConversation(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, state, got)

	state.Summary = "Likes hiking and tea."
	state.Buffer = nil
	state.PendingCount = 0
	require.NoError(t, store.UpsertConversation(ctx, state))

	got, err = store.GetConversation(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "Likes hiking and tea.", got.Summary)
	require.Nil(t, got.Buffer)
	require.Zero(t, got.PendingCount)
}

func TestConversationValidation(t *testing.T) {
	ctx := context.Background()
	store := openMigratedStore(t)

	_, err := store.GetConversation(ctx, " ")
	require.Error(t, err)
	require.Error(t, store.UpsertConversation(ctx, nil))
	require.Error(t, store.UpsertConversation(ctx, &core.ConversationState{}))

	var nilStore *Store
	_, err = nilStore.GetConversation(ctx, "1")
	require.Error(t, err)
}

func TestConversationAdminQueries(t *testing.T) {
	ctx := context.Background()
	store := openMigratedStore(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"tg:1", "tg:2", "http:a", "tg_x"} {
		require.NoError(t, store.UpsertConversation(ctx, &core.ConversationState{
			UserID:      id,
			LastUpdated: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	_, err := store.ListConversations(ctx, ConversationQuery{}, 0)
	require.Error(t, err)

	all, err := store.ListConversations(ctx, ConversationQuery{All: true}, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "tg_x", all[0].UserID)

	limited, err := store.ListConversations(ctx, ConversationQuery{All: true}, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	count, err := store.CountConversations(ctx, ConversationQuery{Prefix: "tg:"})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = store.CountConversations(ctx, ConversationQuery{Prefix: "tg_"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	deleted, err := store.DeleteConversations(ctx, ConversationQuery{UserID: "http:a"})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	deleted, err = store.DeleteConversations(ctx, ConversationQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)
}

func TestAlertHistory(t *testing.T) {
	ctx := context.Background()
	store := openMigratedStore(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordAlert(ctx, "LLM API Failure", "boom", base))
	require.NoError(t, store.RecordAlert(ctx, "Media Request Detected", "photo", base.Add(time.Hour)))
	require.Error(t, store.RecordAlert(ctx, " ", "x", base))

	alerts, err := store.ListAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, "Media Request Detected", alerts[0].Subject)
	require.Equal(t, base, alerts[1].CreatedAt)

	pruned, err := store.PruneAlerts(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	alerts, err = store.ListAlerts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestResetConversation(t *testing.T) {
	ctx := context.Background()
	store := openMigratedStore(t)

	require.NoError(t, store.CheckHealth(ctx))
	require.NoError(t, store.UpsertConversation(ctx, &core.ConversationState{UserID: "tg:9", Summary: "s"}))

	found, err := store.ResetConversation(ctx, " tg:9 ")
	require.NoError(t, err)
	require.True(t, found)

	state, err := store.GetConversation(ctx, "tg:9")
	require.NoError(t, err)
	require.Nil(t, state)

	found, err = store.ResetConversation(ctx, "tg:9")
	require.NoError(t, err)
	require.False(t, found)

	_, err = store.ResetConversation(ctx, "")
	require.Error(t, err)
}
