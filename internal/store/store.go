// Package store defines the contract snapshot sessions write through.
// Implementations live in the dynamo and mongo subpackages.
package store

import (
	"context"

	"optionflow/models"
)

// Store is the durable backend for one orchestration run. Connect is
// called once per run and Disconnect exactly once afterwards,
// regardless of session outcomes.
type Store interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// NewID returns a fresh record identifier in the backend's format.
	NewID() string

	StoreIndexPrice(ctx context.Context, item models.IndexPrice) error
	StoreOptionBatch(ctx context.Context, batch models.OptionBatch) error
}
