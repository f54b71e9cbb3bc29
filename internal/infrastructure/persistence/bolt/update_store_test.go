package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/domain/update"
)

func openTestStore(t *testing.T) *UpdateStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "updates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpdateStore_ClaimOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	u := update.InboundUpdate{ID: 42, Kind: update.KindCommand}

	ok, err := store.TryClaim(ctx, u)
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 5; i++ {
		ok, err = store.TryClaim(ctx, u)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	claimed, err := store.IsClaimed(42)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.IsClaimed(43)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestUpdateStore_ConcurrentClaimsSucceedOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryClaim(ctx, update.InboundUpdate{ID: 7, Kind: update.KindMessage})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestUpdateStore_DistinctIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for id := update.ID(1); id <= 10; id++ {
		ok, err := store.TryClaim(ctx, update.InboundUpdate{ID: id, Kind: update.KindMessage})
		require.NoError(t, err)
		assert.True(t, ok, "id %d", id)
	}
}

func TestUpdateStore_RejectsInvalidAndCancelled(t *testing.T) {
	store := openTestStore(t)

	_, err := store.TryClaim(context.Background(), update.InboundUpdate{ID: 0})
	assert.ErrorIs(t, err, shared.ErrBadRequest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := store.TryClaim(ctx, update.InboundUpdate{ID: 5})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	claimed, err := store.IsClaimed(5)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestUpdateStore_Purge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.TryClaim(ctx, update.InboundUpdate{ID: 1, ReceivedAt: time.Now().Add(-100 * time.Hour)})
	require.NoError(t, err)
	_, err = store.TryClaim(ctx, update.InboundUpdate{ID: 2})
	require.NoError(t, err)

	deleted, err := store.Purge(72 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	claimed, _ := store.IsClaimed(1)
	assert.False(t, claimed)
	claimed, _ = store.IsClaimed(2)
	assert.True(t, claimed)
}
