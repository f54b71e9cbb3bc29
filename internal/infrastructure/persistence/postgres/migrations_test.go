package postgres

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := LoadMigrations(migrationFiles, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.SQL)
	}
	assert.Equal(t, "create_players", migrations[0].Name)
	assert.Equal(t, "create_processed_updates", migrations[1].Name)
}

func TestLoadMigrations_Validation(t *testing.T) {
	ok := fstest.MapFS{
		"m/010_b.sql": {Data: []byte("SELECT 2")},
		"m/002_a.sql": {Data: []byte("SELECT 1")},
		"m/README.md": {Data: []byte("ignored")},
	}
	migrations, err := LoadMigrations(ok, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, 10, migrations[1].Version)

	_, err = LoadMigrations(fstest.MapFS{"m/first.sql": {Data: []byte("x")}}, "m")
	assert.ErrorIs(t, err, ErrMigrationFailed)

	_, err = LoadMigrations(fstest.MapFS{
		"m/001_a.sql": {Data: []byte("x")},
		"m/1_b.sql":   {Data: []byte("y")},
	}, "m")
	assert.ErrorIs(t, err, ErrMigrationFailed)
}

func TestMigrator_ConcurrentAndIdempotent(t *testing.T) {
	pool := newTestPool(t, 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = NewMigrator(pool).Migrate(ctx)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	status, err := NewMigrator(pool).Status(ctx)
	require.NoError(t, err)
	for _, m := range status {
		assert.True(t, m.IsApplied, m.Name)
		assert.False(t, m.AppliedAt.IsZero())
	}
}
