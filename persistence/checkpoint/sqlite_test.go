package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type testState struct {
	Topic string `json:"topic"`
}

func TestSQLiteStoreSaveAndLatest(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	cp1, err := EncodeState("cp1", "thread-1", "", testState{Topic: "a"}, 100)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cp1))

	cp2, err := EncodeState("cp2", "thread-1", "cp1", testState{Topic: "b"}, 200)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cp2))

	latest, err := store.Latest(ctx, "thread-1")
	require.NoError(t, err)
	require.Equal(t, "cp2", latest.ID)
	require.Equal(t, "cp1", latest.ParentID)

	state, err := DecodeState[testState](latest)
	require.NoError(t, err)
	require.Equal(t, "b", state.Topic)
}

func TestSQLiteStoreLatestNotFound(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Latest(context.Background(), "missing-thread")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreDeleteThread(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	cp, err := EncodeState("cp1", "thread-1", "", testState{Topic: "a"}, 100)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cp))

	require.NoError(t, store.DeleteThread(ctx, "thread-1"))

	_, err = store.Latest(ctx, "thread-1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "cp1")
	require.ErrorIs(t, err, ErrNotFound)
}
