// Package storage selects the C9 metadata store backend at startup.
package storage

import (
	"fmt"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/storage/badger"
	"github.com/bobmcallan/coursegen/internal/storage/surrealdb"
)

// NewManager constructs the interfaces.StorageManager named by
// config.Storage.Backend: "badger" for the embedded dev/test backend, or
// "surrealdb" for production.
func NewManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Backend {
	case "", "badger":
		return badger.NewManager(logger, config)
	case "surrealdb":
		return surrealdb.NewManager(logger, config)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}
}
