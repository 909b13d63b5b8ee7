package test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/store"
	"github.com/hrygo/tensai/store/db"
)

// NewTestingStore returns a migrated store. The driver is taken from
// TENSAI_TEST_DRIVER and defaults to an in-memory sqlite database.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	return NewTestingStoreWithProfile(ctx, t, getTestingProfile(t))
}

// NewTestingStoreWithProfile returns a migrated store for p.
func NewTestingStoreWithProfile(ctx context.Context, t *testing.T, p *profile.Profile) *store.Store {
	t.Helper()

	driver, vector, err := db.NewDBDriver(p)
	require.NoError(t, err, "failed to create db driver")

	ts := store.New(driver, vector, p)
	t.Cleanup(func() {
		ts.Close()
	})
	require.NoError(t, ts.Migrate(ctx), "failed to migrate store")
	return ts
}

func getTestingProfile(t *testing.T) *profile.Profile {
	p := &profile.Profile{
		Mode:   profile.ModeDevelopment,
		Driver: getDriverFromEnv(),
	}
	switch p.Driver {
	case "postgres":
		p.DSN = GetPostgresDSN(t)
	default:
		p.Driver = "sqlite"
		p.DSN = ":memory:"
	}
	return p
}

func getDriverFromEnv() string {
	return os.Getenv("TENSAI_TEST_DRIVER")
}
