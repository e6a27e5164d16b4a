// Package service internal/application/service/rate_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/repository"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/cache"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/middleware"
)

var (
	// ErrSourceNotFound is returned for a source that is unknown or disabled
	ErrSourceNotFound = errors.New("source not found")

	// ErrRateNotFound is returned when a source does not publish the requested pair
	ErrRateNotFound = errors.New("exchange rate not found")
)

// GrabberFactory builds the grabber described by a spec
type GrabberFactory func(spec entity.GrabberSpec) (entity.Grabber, error)

// GrabRecorder is told about every download of a source
type GrabRecorder interface {
	ObserveGrab(source string, duration time.Duration, err error)
}

// forgetter is implemented by observers that keep per-rate state
type forgetter interface {
	Forget(key entity.Key)
}

// RateService grabs exchange rates on request and tracks the rates it has
// seen: tracked rates carry the configured observers, are persisted and
// refreshed once they go stale.
type RateService struct {
	factory   GrabberFactory
	sources   map[string]entity.GrabberSpec
	rates     *cache.ExchangeRateCache
	repo      repository.ExchangeRateRepository
	observers []entity.Observer
	grabs     GrabRecorder
	logger    logger.Logger
}

// NewRateService creates a new rate service. sources lists every enabled
// source with its default filter.
func NewRateService(
	factory GrabberFactory,
	sources []entity.GrabberSpec,
	rates *cache.ExchangeRateCache,
	repo repository.ExchangeRateRepository,
	log logger.Logger,
) *RateService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	bySource := make(map[string]entity.GrabberSpec, len(sources))
	for _, spec := range sources {
		bySource[spec.Source] = spec
	}

	return &RateService{
		factory: factory,
		sources: bySource,
		rates:   rates,
		repo:    repo,
		logger:  log,
	}
}

// Attach adds an observer to every rate tracked from now on
func (s *RateService) Attach(o entity.Observer) {
	s.observers = append(s.observers, o)
}

// SetGrabRecorder sets the recorder told about every download
func (s *RateService) SetGrabRecorder(r GrabRecorder) {
	s.grabs = r
}

// Sources returns the enabled sources with their default filters, by tag
func (s *RateService) Sources() []entity.GrabberSpec {
	specs := make([]entity.GrabberSpec, 0, len(s.sources))
	for _, spec := range s.sources {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Source < specs[j].Source })
	return specs
}

// Grab downloads a source and returns the tracked rates it yields. Empty
// code lists fall back to the source's configured filter.
func (s *RateService) Grab(ctx context.Context, source string, base, destination []string) ([]*entity.ExchangeRate, error) {
	requestID := middleware.GetRequestID(ctx)

	spec, ok := s.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	if len(base) > 0 {
		spec.BaseCurrencyCodes = base
	}
	if len(destination) > 0 {
		spec.DestinationCurrencyCodes = destination
	}

	s.logger.Info("Grabbing exchange rates", map[string]interface{}{
		"request_id":   requestID,
		"source":       source,
		"base":         spec.BaseCurrencyCodes,
		"destinations": spec.DestinationCurrencyCodes,
	})

	fresh, err := s.grab(ctx, spec)
	if err != nil {
		s.logger.Error("Failed to grab exchange rates", map[string]interface{}{
			"request_id": requestID,
			"source":     source,
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("failed to grab %s: %w", source, err)
	}

	tracked := make([]*entity.ExchangeRate, 0, len(fresh))
	for _, rate := range fresh {
		tracked = append(tracked, s.track(ctx, rate))
	}

	s.logger.Info("Exchange rates grabbed", map[string]interface{}{
		"request_id": requestID,
		"source":     source,
		"count":      len(tracked),
	})

	return tracked, nil
}

// Rate returns a tracked rate, grabbing it on first use and refreshing it
// once it is stale
func (s *RateService) Rate(ctx context.Context, key entity.Key) (*entity.ExchangeRate, error) {
	if _, ok := s.sources[key.Source]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, key.Source)
	}

	if rate, ok := s.rates.Get(key); ok {
		if !s.rates.IsStale(key) {
			return rate, nil
		}
		return s.Refresh(ctx, key)
	}

	spec := entity.GrabberSpec{
		Source:                   key.Source,
		BaseCurrencyCodes:        []string{key.Base},
		DestinationCurrencyCodes: []string{key.Destination},
	}

	fresh, err := s.grab(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to grab %s: %w", key, err)
	}
	if len(fresh) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRateNotFound, key)
	}

	return s.track(ctx, fresh[0]), nil
}

// Refresh re-runs the tracked rate's own grabber. Observer faults are
// logged and do not fail the refresh.
func (s *RateService) Refresh(ctx context.Context, key entity.Key) (*entity.ExchangeRate, error) {
	requestID := middleware.GetRequestID(ctx)

	rate, ok := s.rates.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not tracked", ErrRateNotFound, key)
	}

	start := time.Now()
	err := rate.Refresh(ctx)
	if entity.ObserverFaults(err) {
		s.recordGrab(key.Source, start, nil)
	} else {
		s.recordGrab(key.Source, start, err)
	}

	switch {
	case err == nil:
	case entity.ObserverFaults(err):
		s.logger.Warn("Observers failed during refresh", map[string]interface{}{
			"request_id": requestID,
			"rate":       key.String(),
			"error":      err.Error(),
		})
	default:
		s.logger.Error("Failed to refresh exchange rate", map[string]interface{}{
			"request_id": requestID,
			"rate":       key.String(),
			"error":      err.Error(),
		})
		return nil, err
	}

	s.rates.Touch(key)
	s.persist(ctx, rate)

	s.logger.Info("Exchange rate refreshed", map[string]interface{}{
		"request_id": requestID,
		"rate":       key.String(),
		"buy":        rate.BuyRate(),
		"sale":       rate.SaleRate(),
	})

	return rate, nil
}

// Tracked returns every tracked rate ordered by key
func (s *RateService) Tracked() []*entity.ExchangeRate {
	return s.rates.Rates()
}

// History returns the recorded snapshots of a rate, newest first
func (s *RateService) History(ctx context.Context, key entity.Key, limit int) ([]entity.Snapshot, error) {
	if _, ok := s.sources[key.Source]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, key.Source)
	}

	history, err := s.repo.FindHistory(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve history: %w", err)
	}
	return history, nil
}

// Untrack stops tracking a rate and deletes what was stored about it
func (s *RateService) Untrack(ctx context.Context, key entity.Key) error {
	rate, ok := s.rates.Remove(key)
	if !ok {
		return fmt.Errorf("%w: %s is not tracked", ErrRateNotFound, key)
	}

	for _, o := range s.observers {
		rate.Detach(o)
		if f, ok := o.(forgetter); ok {
			f.Forget(key)
		}
	}

	if err := s.repo.DeleteRate(ctx, key); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	s.logger.Info("Exchange rate untracked", map[string]interface{}{
		"request_id": middleware.GetRequestID(ctx),
		"rate":       key.String(),
	})
	return nil
}

// Restore tracks the rates persisted by a previous run. Rates of sources
// that are no longer enabled are skipped.
func (s *RateService) Restore(ctx context.Context) (int, error) {
	records, err := s.repo.FindRates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore exchange rates: %w", err)
	}

	restored := 0
	for _, record := range records {
		if _, ok := s.sources[record.Grabber.Source]; !ok {
			s.logger.Warn("Skipping rate of disabled source", map[string]interface{}{
				"source":      record.Grabber.Source,
				"base":        record.BaseCurrencyCode,
				"destination": record.DestinationCurrencyCode,
			})
			continue
		}

		g, err := s.factory(record.Grabber)
		if err != nil {
			s.logger.Warn("Skipping rate with unusable grabber", map[string]interface{}{
				"source": record.Grabber.Source,
				"error":  err.Error(),
			})
			continue
		}

		rate := entity.NewExchangeRate(g, record.BaseCurrencyCode, record.DestinationCurrencyCode,
			record.BuyRate, record.SaleRate, record.Timestamp)

		if _, added := s.rates.Put(rate); !added {
			continue
		}
		s.attach(rate)
		restored++
	}

	s.logger.Info("Exchange rates restored", map[string]interface{}{
		"count": restored,
	})
	return restored, nil
}

func (s *RateService) grab(ctx context.Context, spec entity.GrabberSpec) ([]*entity.ExchangeRate, error) {
	g, err := s.factory(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}

	start := time.Now()
	rates, err := g.GetExchangeRates(ctx)
	s.recordGrab(spec.Source, start, err)
	return rates, err
}

// track starts tracking a freshly grabbed rate, or applies its values to the
// rate already tracked under the same key
func (s *RateService) track(ctx context.Context, fresh *entity.ExchangeRate) *entity.ExchangeRate {
	rate, added := s.rates.Put(fresh)
	if added {
		s.attach(rate)
	} else {
		if err := rate.UpdateExchangeRate(fresh.BuyRate(), fresh.SaleRate(), fresh.Timestamp()); err != nil {
			s.logger.Warn("Observers failed during update", map[string]interface{}{
				"rate":  rate.Key().String(),
				"error": err.Error(),
			})
		}
		s.rates.Touch(rate.Key())
	}

	s.persist(ctx, rate)
	return rate
}

func (s *RateService) attach(rate *entity.ExchangeRate) {
	for _, o := range s.observers {
		if err := rate.Attach(o); err != nil {
			s.logger.Warn("Observer rejected", map[string]interface{}{
				"rate":  rate.Key().String(),
				"error": err.Error(),
			})
		}
	}
	if err := rate.NotifyCreated(); err != nil {
		s.logger.Warn("Observers failed on created rate", map[string]interface{}{
			"rate":  rate.Key().String(),
			"error": err.Error(),
		})
	}
}

func (s *RateService) persist(ctx context.Context, rate *entity.ExchangeRate) {
	if err := s.repo.StoreRate(ctx, rate); err != nil {
		s.logger.Error("Failed to store exchange rate", map[string]interface{}{
			"rate":  rate.Key().String(),
			"error": err.Error(),
		})
	}
}

func (s *RateService) recordGrab(source string, start time.Time, err error) {
	if s.grabs != nil {
		s.grabs.ObserveGrab(source, time.Since(start), err)
	}
}
