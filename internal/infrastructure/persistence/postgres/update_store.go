package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/update"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStore implements update.Claimer on the processed_updates table.
// The primary key on update_id makes the claim atomic across all instances
// sharing the database.
type UpdateStore struct {
	pool *Pool
}

var _ update.Claimer = (*UpdateStore)(nil)

// NewUpdateStore creates a new UpdateStore.
func NewUpdateStore(pool *Pool) *UpdateStore {
	return &UpdateStore{pool: pool}
}

// TryClaim records the update id. Only the call whose insert succeeded gets true.
func (s *UpdateStore) TryClaim(ctx context.Context, u update.InboundUpdate) (bool, error) {
	if err := u.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT INTO processed_updates (update_id, kind, payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (update_id) DO NOTHING
	`

	receivedAt := u.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	var payload []byte
	if len(u.Payload) > 0 {
		payload = u.Payload
	}

	var claimed bool
	err := s.pool.WithHandle(ctx, func(h *Handle) error {
		tag, err := h.Exec(ctx, query, int64(u.ID), string(u.Kind), payload, receivedAt)
		if err != nil {
			return storageErr("claim update", err)
		}
		claimed = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// IsClaimed reports whether the update id was already recorded.
func (s *UpdateStore) IsClaimed(ctx context.Context, id update.ID) (bool, error) {
	var exists bool
	err := s.pool.WithHandle(ctx, func(h *Handle) error {
		err := h.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM processed_updates WHERE update_id = $1)`, int64(id),
		).Scan(&exists)
		if err != nil {
			return storageErr("check update", err)
		}
		return nil
	})
	return exists, err
}

// Purge deletes records older than the retention window.
// Retention must exceed the platform's redelivery window.
func (s *UpdateStore) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("postgres: purge retention must be positive")
	}

	var deleted int64
	err := s.pool.WithHandle(ctx, func(h *Handle) error {
		tag, err := h.Exec(ctx,
			`DELETE FROM processed_updates WHERE received_at < $1`,
			time.Now().UTC().Add(-retention),
		)
		if err != nil {
			return storageErr("purge updates", err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}
