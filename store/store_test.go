package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ InstanceStore = (*InMemoryStore)(nil)
	_ InstanceStore = (*SQLiteStore)(nil)
)

// runStoreContract exercises the InstanceStore contract against any
// implementation.
func runStoreContract(t *testing.T, s InstanceStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.MarkInactive(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

	rec := Record{
		InstanceID: "inst-1",
		TemplateID: "market_square",
		Status:     "active",
		Seed:       42,
		Turn:       7,
		Players:    []string{"p1", "p2"},
		Snapshot:   []byte(`{"turn":7}`),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "market_square", got.TemplateID)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, 7, got.Turn)
	assert.Equal(t, []string{"p1", "p2"}, got.Players)
	assert.JSONEq(t, `{"turn":7}`, string(got.Snapshot))

	// Upsert replaces.
	rec.Turn = 9
	rec.Status = "active"
	require.NoError(t, s.Save(ctx, rec))
	got, err = s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Turn)

	// Only active records are resumable.
	require.NoError(t, s.Save(ctx, Record{InstanceID: "inst-2", TemplateID: "t", Status: "pending"}))
	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "inst-1", active[0].InstanceID)

	require.NoError(t, s.MarkInactive(ctx, "inst-1"))
	active, err = s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	got, err = s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", got.Status)

	require.NoError(t, s.Delete(ctx, "inst-1"))
	_, err = s.Load(ctx, "inst-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_Contract(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()
	runStoreContract(t, s)
}

func TestInMemoryStore_ClonesRecords(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := Record{InstanceID: "inst-1", Status: "active", Snapshot: []byte("abc"), Players: []string{"p1"}}
	require.NoError(t, s.Save(ctx, rec))

	// Mutating the caller's copy must not leak into the store.
	rec.Snapshot[0] = 'X'
	rec.Players[0] = "mutated"

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got.Snapshot)
	assert.Equal(t, []string{"p1"}, got.Players)
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "instances.db"))
	require.NoError(t, err)
	defer s.Close()
	runStoreContract(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Record{
		InstanceID: "inst-1", TemplateID: "t", Status: "active",
		Snapshot: []byte(`{"turn":3}`), Players: []string{"p1"},
	}))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, []string{"p1"}, got.Players)

	active, err := s2.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestOpenSQLite_RejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}
