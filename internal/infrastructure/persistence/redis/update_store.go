package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/domain/update"
)

// DefaultClaimRetention outlives the platform's 24h redelivery window.
const DefaultClaimRetention = 72 * time.Hour

// ErrStorage wraps Redis failures during a claim.
var ErrStorage = fmt.Errorf("redis: %w", shared.ErrStorage)

// UpdateStore implements update.Claimer with SET NX.
// The claim is atomic across every instance sharing the Redis server.
type UpdateStore struct {
	cache     *Cache
	retention time.Duration
}

var _ update.Claimer = (*UpdateStore)(nil)

// NewUpdateStore creates a new UpdateStore.
func NewUpdateStore(cache *Cache, retention time.Duration) *UpdateStore {
	if retention <= 0 {
		retention = DefaultClaimRetention
	}
	return &UpdateStore{cache: cache, retention: retention}
}

type claimRecord struct {
	Kind       string    `json:"kind"`
	ReceivedAt time.Time `json:"received_at"`
}

// TryClaim records the update id; only the first caller gets true.
func (s *UpdateStore) TryClaim(ctx context.Context, u update.InboundUpdate) (bool, error) {
	if err := u.Validate(); err != nil {
		return false, err
	}

	receivedAt := u.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	ok, err := s.cache.SetNX(ctx, UpdateKey(int64(u.ID)), claimRecord{
		Kind:       string(u.Kind),
		ReceivedAt: receivedAt,
	}, s.retention)
	if err != nil {
		return false, fmt.Errorf("%w: claim update %d: %w", ErrStorage, u.ID, err)
	}
	return ok, nil
}
