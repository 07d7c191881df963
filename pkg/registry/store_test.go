package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blockd/blockd/pkg/capability"
)

// sharedContainer holds the Postgres container every test in this package
// runs against, started once via TestMain.
var sharedContainer struct {
	dsn string
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("blockd_registry_test"),
		postgres.WithUsername("blockd_registry_test"),
		postgres.WithPassword("blockd_registry_test"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		panic("start registry test postgres container: " + err.Error())
	}
	defer func() { _ = container.Terminate(ctx) }()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic("get registry test container dsn: " + err.Error())
	}
	sharedContainer.dsn = dsn

	m.Run()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{DSN: sharedContainer.dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	caps := capability.Set{"create": true, "delete": true}
	require.NoError(t, store.Upsert(ctx, "10.0.0.1:7890", "1.3", caps))

	p, err := store.Get(ctx, "10.0.0.1:7890")
	require.NoError(t, err)
	require.Equal(t, "1.3", p.Version)

	got, err := p.CapabilitySet()
	require.NoError(t, err)
	require.True(t, got["create"])
	require.True(t, got["delete"])
	require.False(t, got["replace"])
}

func TestStore_UpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "10.0.0.2:7890", "1.0", capability.Set{"create": true}))
	require.NoError(t, store.Upsert(ctx, "10.0.0.2:7890", "1.1", capability.Set{"create": true, "replace": true}))

	p, err := store.Get(ctx, "10.0.0.2:7890")
	require.NoError(t, err)
	require.Equal(t, "1.1", p.Version)
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "no-such-peer:7890")
	require.Error(t, err)
	rerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrNotFound, rerr.Code)
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "10.0.0.3:7890", "1.3", capability.Set{"create": true}))
	require.NoError(t, store.Upsert(ctx, "10.0.0.4:7890", "1.3", capability.Set{"create": true}))

	peers, err := store.List(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(peers), 2)
}

func TestStore_RecordErrorPreservesCapabilities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "10.0.0.5:7890", "1.3", capability.Set{"create": true}))
	require.NoError(t, store.RecordError(ctx, "10.0.0.5:7890", errors.New("dial timeout")))

	p, err := store.Get(ctx, "10.0.0.5:7890")
	require.NoError(t, err)
	require.Equal(t, "dial timeout", p.LastError)

	caps, err := p.CapabilitySet()
	require.NoError(t, err)
	require.True(t, caps["create"])
}

func TestStore_Remove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "10.0.0.6:7890", "1.3", capability.Set{"create": true}))
	require.NoError(t, store.Remove(ctx, "10.0.0.6:7890"))

	_, err := store.Get(ctx, "10.0.0.6:7890")
	require.Error(t, err)
}
