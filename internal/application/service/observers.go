package service

import (
	"context"
	"fmt"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/repository"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

// LoggingObserver logs the lifecycle of tracked rates
type LoggingObserver struct {
	logger logger.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(log logger.Logger) *LoggingObserver {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &LoggingObserver{logger: log}
}

// ExchangeRateCreated logs a newly tracked rate
func (o *LoggingObserver) ExchangeRateCreated(current entity.Snapshot) error {
	o.logger.Info("Exchange rate tracked", snapshotFields(current))
	return nil
}

// ExchangeRateUpdated logs every update at debug level
func (o *LoggingObserver) ExchangeRateUpdated(previous, current entity.Snapshot) error {
	o.logger.Debug("Exchange rate updated", snapshotFields(current))
	return nil
}

// ExchangeRateChanged logs the new values next to the previous ones
func (o *LoggingObserver) ExchangeRateChanged(previous, current entity.Snapshot) error {
	fields := snapshotFields(current)
	fields["previous_buy"] = previous.BuyRate
	fields["previous_sale"] = previous.SaleRate
	o.logger.Info("Exchange rate changed", fields)
	return nil
}

func snapshotFields(s entity.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"rate":      s.Key().String(),
		"buy":       s.BuyRate,
		"sale":      s.SaleRate,
		"timestamp": s.Timestamp.Format(time.RFC3339),
	}
}

// HistoryRecorder stores a snapshot whenever a tracked rate is created or
// changes. Updates that leave the values as they were are not recorded.
type HistoryRecorder struct {
	repo    repository.ExchangeRateRepository
	timeout time.Duration
}

// NewHistoryRecorder creates a new history recorder
func NewHistoryRecorder(repo repository.ExchangeRateRepository) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, timeout: 5 * time.Second}
}

// ExchangeRateCreated stores the first snapshot of a rate
func (h *HistoryRecorder) ExchangeRateCreated(current entity.Snapshot) error {
	return h.store(current)
}

// ExchangeRateUpdated records nothing
func (h *HistoryRecorder) ExchangeRateUpdated(previous, current entity.Snapshot) error {
	return nil
}

// ExchangeRateChanged stores the new snapshot
func (h *HistoryRecorder) ExchangeRateChanged(previous, current entity.Snapshot) error {
	return h.store(current)
}

func (h *HistoryRecorder) store(s entity.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.repo.StoreSnapshot(ctx, s); err != nil {
		return fmt.Errorf("failed to record %s: %w", s.Key(), err)
	}
	return nil
}
