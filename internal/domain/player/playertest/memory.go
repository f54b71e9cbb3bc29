// Package playertest provides in-memory implementations of the player
// repository and leaderboard cache for tests.
package playertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
)

// Repository is an in-memory player.Repository. Mutate holds a single lock,
// which serializes all mutations like a row lock would serialize one player.
type Repository struct {
	mu      sync.Mutex
	players map[int64]player.Player
	ledger  []player.LedgerEntry
	now     func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

var _ player.Repository = (*Repository)(nil)

// NewRepository returns an empty repository using a UTC wall clock.
func NewRepository() *Repository {
	return &Repository{
		players: make(map[int64]player.Player),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock pins the time handed to mutations.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Put stores p as is.
func (r *Repository) Put(p player.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[p.ID] = p
}

// Ledger returns a copy of all recorded ledger entries.
func (r *Repository) Ledger() []player.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]player.LedgerEntry(nil), r.ledger...)
}

// Len returns the number of stored players.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*player.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.players[id]
	if !ok {
		return nil, shared.ErrPlayerNotFound
	}
	return &p, nil
}

func (r *Repository) Mutate(ctx context.Context, id int64, opts player.MutateOptions, fn player.MutateFunc) (*player.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.now()
	current, ok := r.players[id]
	created := false
	if !ok {
		if !opts.CreateIfMissing {
			return nil, shared.ErrPlayerNotFound
		}
		p, err := player.New(id, now)
		if err != nil {
			return nil, err
		}
		current = *p
		created = true
	}

	working := current
	m := player.NewMutation(&working, created, now)
	if err := fn(m); err != nil {
		return nil, err
	}
	if m.Changed() {
		working.UpdatedAt = now
		r.players[id] = working
		r.ledger = append(r.ledger, m.Ledger()...)
	}
	out := working
	return &out, nil
}

func (r *Repository) Top(ctx context.Context, limit int) ([]player.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	all := make([]player.Player, 0, len(r.players))
	for _, p := range r.players {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Level != all[j].Level {
			return all[i].Level > all[j].Level
		}
		if all[i].XP != all[j].XP {
			return all[i].XP > all[j].XP
		}
		return all[i].ID < all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	entries := make([]player.LeaderboardEntry, len(all))
	for i, p := range all {
		entries[i] = player.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   p.ID,
			Username: p.Username,
			Balance:  p.Balance,
			XP:       p.XP,
			Level:    p.Level,
		}
	}
	return entries, nil
}

// LeaderboardCache is an in-memory player.LeaderboardCache without expiry.
type LeaderboardCache struct {
	mu          sync.Mutex
	entries     []player.LeaderboardEntry
	present     bool
	Invalidated int
	Err         error
}

var _ player.LeaderboardCache = (*LeaderboardCache)(nil)

func (c *LeaderboardCache) Get(ctx context.Context) ([]player.LeaderboardEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	if !c.present {
		return nil, false, nil
	}
	return append([]player.LeaderboardEntry(nil), c.entries...), true, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, entries []player.LeaderboardEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.entries = append([]player.LeaderboardEntry(nil), entries...)
	c.present = true
	return nil
}

func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidated++
	if c.Err != nil {
		return c.Err
	}
	c.entries = nil
	c.present = false
	return nil
}
