package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/domain/update"
)

// newTestPool connects to CASINO_TEST_DATABASE_URL, migrates and empties the tables.
func newTestPool(t *testing.T, maxConns int32) *Pool {
	t.Helper()

	url := os.Getenv("CASINO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CASINO_TEST_DATABASE_URL not set")
	}

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.MaxConns = maxConns
	cfg.MinConns = 0
	cfg.AcquireTimeout = 2 * time.Second

	ctx := context.Background()
	pool, err := NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, NewMigrator(pool).Migrate(ctx))
	require.NoError(t, pool.WithHandle(ctx, func(h *Handle) error {
		_, err := h.Exec(ctx, `TRUNCATE balance_ledger, players, processed_updates`)
		return err
	}))

	return pool
}

func TestPool_AcquireTimesOutWhenExhausted(t *testing.T) {
	pool := newTestPool(t, 1)
	ctx := context.Background()

	first, err := pool.Acquire(ctx, 0)
	require.NoError(t, err)

	start := time.Now()
	_, err = pool.Acquire(ctx, 150*time.Millisecond)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.ErrorIs(t, err, shared.ErrPoolExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int64(1), pool.Stats().Exhausted)

	first.Release()
	first.Release()
	assert.True(t, first.Released())

	_, err = first.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrHandleReleased)

	second, err := pool.Acquire(ctx, 150*time.Millisecond)
	require.NoError(t, err)
	second.Release()
}

func TestPool_AcquireBlocksUntilRelease(t *testing.T) {
	pool := newTestPool(t, 1)
	ctx := context.Background()

	first, err := pool.Acquire(ctx, 0)
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		h, err := pool.Acquire(ctx, 2*time.Second)
		if err == nil {
			h.Release()
		}
		got <- err
	}()

	select {
	case <-got:
		t.Fatal("second acquire returned while the only connection was held")
	case <-time.After(100 * time.Millisecond):
	}

	first.Release()
	require.NoError(t, <-got)
}

func TestPool_AcquireHonoursCancellation(t *testing.T) {
	pool := newTestPool(t, 1)

	held, err := pool.Acquire(context.Background(), 0)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = pool.Acquire(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_ReplacesDeadConnection(t *testing.T) {
	pool := newTestPool(t, 1)
	ctx := context.Background()

	victim, err := pool.Acquire(ctx, 0)
	require.NoError(t, err)
	var pid int32
	require.NoError(t, victim.QueryRow(ctx, `SELECT pg_backend_pid()`).Scan(&pid))

	admin, err := pgx.Connect(ctx, os.Getenv("CASINO_TEST_DATABASE_URL"))
	require.NoError(t, err)
	defer admin.Close(ctx)

	var terminated bool
	require.NoError(t, admin.QueryRow(ctx, `SELECT pg_terminate_backend($1)`, pid).Scan(&terminated))
	require.True(t, terminated)
	require.Eventually(t, func() bool {
		var n int
		err := admin.QueryRow(ctx, `SELECT count(*) FROM pg_stat_activity WHERE pid = $1`, pid).Scan(&n)
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond)

	// The pool still counts the dead connection as idle; the next acquire
	// must notice and hand out a fresh one.
	victim.Release()
	before := pool.Stats().Replaced

	h, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	defer h.Release()

	var one int
	require.NoError(t, h.QueryRow(ctx, `SELECT 1`).Scan(&one))
	assert.Equal(t, 1, one)

	var newPID int32
	require.NoError(t, h.QueryRow(ctx, `SELECT pg_backend_pid()`).Scan(&newPID))
	assert.NotEqual(t, pid, newPID)
	assert.Equal(t, before+1, pool.Stats().Replaced)
}

func TestPool_WithTxRollsBackOnError(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx := context.Background()
	boom := errors.New("boom")

	err := pool.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO players (user_id) VALUES (900)`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewPlayerRepository(pool).GetByID(ctx, 900)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, int32(0), pool.Stats().AcquiredConns)
}

func TestPool_WithTxRollsBackOnPanic(t *testing.T) {
	pool := newTestPool(t, 1)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = pool.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			_, _ = tx.Exec(ctx, `INSERT INTO players (user_id) VALUES (901)`)
			panic("handler bug")
		})
	})

	// The only connection is back in the pool.
	h, err := pool.Acquire(ctx, 500*time.Millisecond)
	require.NoError(t, err)
	h.Release()

	_, err = NewPlayerRepository(pool).GetByID(ctx, 901)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateStore_ConcurrentClaimsSucceedOnce(t *testing.T) {
	pool := newTestPool(t, 5)
	store := NewUpdateStore(pool)
	ctx := context.Background()

	u := update.InboundUpdate{
		ID:      42,
		Kind:    update.KindCommand,
		Payload: []byte(`{"update_id":42}`),
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryClaim(ctx, u)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	claimed, err := store.IsClaimed(ctx, 42)
	require.NoError(t, err)
	assert.True(t, claimed)

	ok, err := store.TryClaim(ctx, update.InboundUpdate{ID: 43, Kind: update.KindMessage})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateStore_RejectsInvalidID(t *testing.T) {
	pool := newTestPool(t, 1)
	_, err := NewUpdateStore(pool).TryClaim(context.Background(), update.InboundUpdate{ID: 0})
	assert.ErrorIs(t, err, shared.ErrBadRequest)
}

func TestUpdateStore_Purge(t *testing.T) {
	pool := newTestPool(t, 2)
	store := NewUpdateStore(pool)
	ctx := context.Background()

	_, err := store.TryClaim(ctx, update.InboundUpdate{ID: 1, Kind: update.KindMessage, ReceivedAt: time.Now().Add(-100 * time.Hour)})
	require.NoError(t, err)
	_, err = store.TryClaim(ctx, update.InboundUpdate{ID: 2, Kind: update.KindMessage})
	require.NoError(t, err)

	deleted, err := store.Purge(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestPlayerRepository_MutateCreatesAndRecordsLedger(t *testing.T) {
	pool := newTestPool(t, 3)
	repo := NewPlayerRepository(pool)
	ctx := context.Background()

	p, err := repo.Mutate(ctx, 42, player.MutateOptions{CreateIfMissing: true}, func(m *player.Mutation) error {
		assert.True(t, m.Created)
		rule, err := m.Player.ClaimBonus(player.BonusDaily, m.Now)
		if err != nil {
			return err
		}
		m.Record(rule.Coins, player.ReasonForBonus(rule.Kind))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10300), p.Balance)
	assert.Equal(t, 20, p.XP)

	stored, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(10300), stored.Balance)
	require.NotNil(t, stored.LastDailyBonusClaim)

	ledger, err := repo.LedgerFor(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(300), ledger[0].Delta)
	assert.Equal(t, player.ReasonDailyBonus, ledger[0].Reason)

	// Cooldown leaves both tables untouched.
	_, err = repo.Mutate(ctx, 42, player.MutateOptions{}, func(m *player.Mutation) error {
		_, err := m.Player.ClaimBonus(player.BonusDaily, m.Now)
		return err
	})
	assert.ErrorIs(t, err, shared.ErrCooldown)

	ledger, err = repo.LedgerFor(ctx, 42, 10)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestPlayerRepository_MutateMissingPlayer(t *testing.T) {
	pool := newTestPool(t, 1)
	_, err := NewPlayerRepository(pool).Mutate(context.Background(), 77, player.MutateOptions{}, func(m *player.Mutation) error {
		t.Fatal("fn must not run for a missing player")
		return nil
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPlayerRepository_ConcurrentMutationsSerialize(t *testing.T) {
	pool := newTestPool(t, 5)
	repo := NewPlayerRepository(pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, 5, player.MutateOptions{CreateIfMissing: true}, func(m *player.Mutation) error {
				if err := m.Player.Credit(10); err != nil {
					return err
				}
				m.Record(10, player.ReasonAdminGrant)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := repo.GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, player.InitialBalance+100, p.Balance)

	ledger, err := repo.LedgerFor(ctx, 5, 100)
	require.NoError(t, err)
	assert.Len(t, ledger, 10)
}

func TestPlayerRepository_Top(t *testing.T) {
	pool := newTestPool(t, 2)
	repo := NewPlayerRepository(pool)
	ctx := context.Background()

	xps := map[int64]int{1: 50, 2: 350, 3: 120, 4: 360}
	for id, xp := range xps {
		_, err := repo.Mutate(ctx, id, player.MutateOptions{CreateIfMissing: true}, func(m *player.Mutation) error {
			m.Player.AddXP(xp)
			m.MarkChanged()
			return nil
		})
		require.NoError(t, err)
	}

	top, err := repo.Top(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, int64(4), top[0].UserID)
	assert.Equal(t, int64(2), top[1].UserID)
	assert.Equal(t, int64(3), top[2].UserID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, 3, top[2].Rank)
}
