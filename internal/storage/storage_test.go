package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlpotfit/fitting-core/pkg/config"
)

func sampleRecord(id, runID string, generation int, total float64) CheckpointRecord {
	return CheckpointRecord{
		ID:         id,
		RunID:      runID,
		Generation: generation,
		Total:      total,
		L1:         0.05,
		L2:         0.02,
		TrainRMSE:  [3]float64{0.1, 0.2, 0.3},
		TestRMSE:   [3]float64{0.15, 0.25, 0.35},
		Elite:      []float64{1.0, -0.5, 0.25},
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncodeDecodeCheckpoint(t *testing.T) {
	rec := sampleRecord("cp-1", "run-a", 99, 1.5)

	payload, err := EncodeCheckpoint(rec)
	require.NoError(t, err)

	got, err := DecodeCheckpoint(payload)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestDecodeCheckpointInvalid(t *testing.T) {
	_, err := DecodeCheckpoint([]byte("not json"))
	assert.Error(t, err)
}

// storeUnderTest runs the contract tests against any Store implementation.
func storeUnderTest(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	_, ok, err := store.GetCheckpoint(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.LatestCheckpoint(ctx, "run-a")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := store.ListCheckpoints(ctx, "run-a")
	require.NoError(t, err)
	assert.Empty(t, recs)

	a1 := sampleRecord("cp-1", "run-a", 99, 2.0)
	a2 := sampleRecord("cp-2", "run-a", 199, 1.0)
	b1 := sampleRecord("cp-3", "run-b", 99, 3.0)
	require.NoError(t, store.SaveCheckpoint(ctx, a1))
	require.NoError(t, store.SaveCheckpoint(ctx, a2))
	require.NoError(t, store.SaveCheckpoint(ctx, b1))

	got, ok, err := store.GetCheckpoint(ctx, "cp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a1, got)

	recs, err = store.ListCheckpoints(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 99, recs[0].Generation)
	assert.Equal(t, 199, recs[1].Generation)

	latest, ok, err := store.LatestCheckpoint(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cp-2", latest.ID)

	// Saving an existing ID replaces the record.
	a2b := a2
	a2b.Total = 0.5
	require.NoError(t, store.SaveCheckpoint(ctx, a2b))
	got, ok, err = store.GetCheckpoint(ctx, "cp-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.5, got.Total)

	recs, err = store.ListCheckpoints(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	storeUnderTest(t, NewSQLiteStore(path))
}

func TestMemoryStoreCopiesElite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	rec := sampleRecord("cp-1", "run-a", 99, 1.0)
	require.NoError(t, store.SaveCheckpoint(ctx, rec))
	rec.Elite[0] = 999

	got, ok, err := store.GetCheckpoint(ctx, "cp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Elite[0])
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	err := store.SaveCheckpoint(context.Background(), sampleRecord("cp-1", "run-a", 99, 1.0))
	assert.Error(t, err)
}

func TestSQLiteStoreEmptyPath(t *testing.T) {
	store := NewSQLiteStore("")
	assert.Error(t, store.Init(context.Background()))
}

func TestStoreFactory(t *testing.T) {
	store, err := New(&config.OutputConfig{Store: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(&config.OutputConfig{Store: "sqlite", StorePath: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)

	_, err = New(&config.OutputConfig{Store: "redis"})
	assert.Error(t, err)
}
