package storage

import (
	"context"
	"time"
)

// CheckpointRecord is the persisted outcome of one checkpoint: the loss
// decomposition plus the bias-corrected elite vector that produced it.
type CheckpointRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Generation int       `json:"generation"`
	Total      float64   `json:"total"`
	L1         float64   `json:"l1"`
	L2         float64   `json:"l2"`
	TrainRMSE  [3]float64 `json:"train_rmse"` // energy, force, virial
	TestRMSE   [3]float64 `json:"test_rmse"`
	Elite      []float64 `json:"elite"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists run history. Implementations must be safe for
// concurrent use.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, rec CheckpointRecord) error
	GetCheckpoint(ctx context.Context, id string) (CheckpointRecord, bool, error)
	ListCheckpoints(ctx context.Context, runID string) ([]CheckpointRecord, error)
	LatestCheckpoint(ctx context.Context, runID string) (CheckpointRecord, bool, error)
	Close() error
}
