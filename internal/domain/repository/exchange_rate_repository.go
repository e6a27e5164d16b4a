// Package repository internal/domain/repository/exchange_rate_repository.go
package repository

import (
	"context"
	"errors"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
)

// ErrNotFound is returned when a stored rate does not exist
var ErrNotFound = errors.New("not found")

// ExchangeRateRepository defines the interface for persisting exchange rates
// outside the entity: tracked rates survive restarts and changes build a history.
type ExchangeRateRepository interface {
	// StoreRate saves the serialized form of a tracked rate
	StoreRate(ctx context.Context, rate *entity.ExchangeRate) error

	// FindRates returns every tracked rate record
	FindRates(ctx context.Context) ([]entity.Record, error)

	// DeleteRate forgets a tracked rate and its history
	DeleteRate(ctx context.Context, key entity.Key) error

	// StoreSnapshot appends a snapshot to the rate's history
	StoreSnapshot(ctx context.Context, snapshot entity.Snapshot) error

	// FindHistory returns up to limit snapshots of a rate, newest first
	FindHistory(ctx context.Context, key entity.Key, limit int) ([]entity.Snapshot, error)
}
