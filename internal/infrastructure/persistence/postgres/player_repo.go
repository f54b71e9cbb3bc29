package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PlayerRepository implements player.Repository for PostgreSQL.
type PlayerRepository struct {
	pool *Pool
	now  func() time.Time
}

var _ player.Repository = (*PlayerRepository)(nil)

// NewPlayerRepository creates a new PlayerRepository.
func NewPlayerRepository(pool *Pool) *PlayerRepository {
	return &PlayerRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests).
func (r *PlayerRepository) WithClock(now func() time.Time) *PlayerRepository {
	r.now = now
	return r
}

const selectPlayer = `
	SELECT user_id, username, balance, xp, level,
		   last_free_coins_claim, last_daily_bonus_claim, last_quick_bonus_claim,
		   last_seen_at, created_at, updated_at
	FROM players
`

// GetByID returns a player by Telegram user id.
func (r *PlayerRepository) GetByID(ctx context.Context, id int64) (*player.Player, error) {
	if id <= 0 {
		return nil, shared.ErrInvalidPlayerID
	}

	var p *player.Player
	err := r.pool.WithHandle(ctx, func(h *Handle) error {
		var err error
		p, err = scanPlayer(h.QueryRow(ctx, selectPlayer+` WHERE user_id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Mutate locks the player row, applies fn and persists the player together
// with its ledger entries in one transaction. Concurrent mutations of the
// same player are serialized by the row lock, across all instances.
func (r *PlayerRepository) Mutate(
	ctx context.Context,
	id int64,
	opts player.MutateOptions,
	fn player.MutateFunc,
) (*player.Player, error) {
	if id <= 0 {
		return nil, shared.ErrInvalidPlayerID
	}

	var result *player.Player
	err := r.pool.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		now := r.now()

		created := false
		if opts.CreateIfMissing {
			tag, err := tx.Exec(ctx, `
				INSERT INTO players (user_id, username, balance, xp, level, created_at, updated_at)
				VALUES ($1, $2, $3, 0, 1, $4, $4)
				ON CONFLICT (user_id) DO NOTHING
			`, id, player.DefaultUsername, player.InitialBalance, now)
			if err != nil {
				return storageErr("create player", err)
			}
			created = tag.RowsAffected() == 1
		}

		p, err := scanPlayer(tx.QueryRow(ctx, selectPlayer+` WHERE user_id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		m := player.NewMutation(p, created, now)
		if err := fn(m); err != nil {
			return err
		}

		if m.Changed() {
			p.UpdatedAt = now
			if err := updatePlayer(ctx, tx, p); err != nil {
				return err
			}
			for _, entry := range m.Ledger() {
				if err := insertLedger(ctx, tx, entry); err != nil {
					return err
				}
			}
		}

		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Top returns the global leaderboard ordered by level and XP.
func (r *PlayerRepository) Top(ctx context.Context, limit int) ([]player.LeaderboardEntry, error) {
	if limit <= 0 || limit > player.LeaderboardLimit {
		limit = player.LeaderboardLimit
	}

	query := `
		SELECT user_id, username, balance, xp, level
		FROM players
		ORDER BY level DESC, xp DESC, user_id ASC
		LIMIT $1
	`

	var entries []player.LeaderboardEntry
	err := r.pool.WithHandle(ctx, func(h *Handle) error {
		rows, err := h.Query(ctx, query, limit)
		if err != nil {
			return storageErr("query leaderboard", err)
		}
		defer rows.Close()

		entries = make([]player.LeaderboardEntry, 0, limit)
		for rows.Next() {
			var e player.LeaderboardEntry
			if err := rows.Scan(&e.UserID, &e.Username, &e.Balance, &e.XP, &e.Level); err != nil {
				return storageErr("scan leaderboard", err)
			}
			e.Rank = len(entries) + 1
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return storageErr("iterate leaderboard", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func updatePlayer(ctx context.Context, tx pgx.Tx, p *player.Player) error {
	_, err := tx.Exec(ctx, `
		UPDATE players SET
			username = $2,
			balance = $3,
			xp = $4,
			level = $5,
			last_free_coins_claim = $6,
			last_daily_bonus_claim = $7,
			last_quick_bonus_claim = $8,
			last_seen_at = $9,
			updated_at = $10
		WHERE user_id = $1
	`,
		p.ID,
		p.Username,
		p.Balance,
		p.XP,
		p.Level,
		p.LastFreeCoinsClaim,
		p.LastDailyBonusClaim,
		p.LastQuickBonusClaim,
		p.LastSeenAt,
		p.UpdatedAt,
	)
	if err != nil {
		return storageErr("update player", err)
	}
	return nil
}

func insertLedger(ctx context.Context, tx pgx.Tx, e player.LedgerEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balance_ledger (id, player_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), e.PlayerID, e.Delta, e.Reason, e.CreatedAt)
	if err != nil {
		return storageErr("insert ledger entry", err)
	}
	return nil
}

// scanPlayer scans a single player from a row.
func scanPlayer(row pgx.Row) (*player.Player, error) {
	var p player.Player
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.Balance,
		&p.XP,
		&p.Level,
		&p.LastFreeCoinsClaim,
		&p.LastDailyBonusClaim,
		&p.LastQuickBonusClaim,
		&p.LastSeenAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrPlayerNotFound
	}
	if err != nil {
		return nil, storageErr("scan player", err)
	}
	return &p, nil
}

// LedgerFor returns the ledger entries of a player, newest first.
func (r *PlayerRepository) LedgerFor(ctx context.Context, id int64, limit int) ([]player.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []player.LedgerEntry
	err := r.pool.WithHandle(ctx, func(h *Handle) error {
		rows, err := h.Query(ctx, `
			SELECT player_id, delta, reason, created_at
			FROM balance_ledger
			WHERE player_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, id, limit)
		if err != nil {
			return storageErr("query ledger", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e player.LedgerEntry
			if err := rows.Scan(&e.PlayerID, &e.Delta, &e.Reason, &e.CreatedAt); err != nil {
				return storageErr("scan ledger", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("ledger for %d: %w", id, err)
	}
	return entries, nil
}
