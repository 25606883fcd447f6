package storage

import (
	"fmt"

	"github.com/mlpotfit/fitting-core/pkg/config"
)

// New constructs the Store selected by the output configuration
func New(oc *config.OutputConfig) (Store, error) {
	switch oc.Store {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(oc.StorePath), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", oc.Store)
	}
}
