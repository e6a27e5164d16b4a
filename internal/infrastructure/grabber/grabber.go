// Package grabber implements the exchange rate sources and the two
// extraction strategies they are built on: XPath queries over HTML
// markup and key lookups in JSON payloads.
package grabber

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

// Source tags
const (
	SourcePrivatBank = "privatbank"
	SourceNBU        = "nbu"
	SourceOschadBank = "oschadbank"
	SourceUkrSibBank = "ukrsibbank"
	SourceUkrGasBank = "ukrgasbank"
	SourceAlfaBank   = "alfabank"
)

const requestTimeout = 30 * time.Second

// ErrUnknownSource is returned for a source tag with no registered grabber
var ErrUnknownSource = errors.New("unknown source")

// Constructor builds a grabber for one source
type Constructor func(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) entity.Grabber

var registry = map[string]Constructor{
	SourcePrivatBank: func(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) entity.Grabber {
		return NewPrivatBank(f, fetcher, log)
	},
	SourceNBU: func(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) entity.Grabber {
		return NewNBU(f, fetcher, log)
	},
	SourceOschadBank: func(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) entity.Grabber {
		return NewOschadBank(f, fetcher, log)
	},
	SourceUkrSibBank: func(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) entity.Grabber {
		return NewUkrSibBank(f, fetcher, log)
	},
	SourceUkrGasBank: func(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) entity.Grabber {
		return NewUkrGasBank(f, fetcher, log)
	},
	SourceAlfaBank: func(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) entity.Grabber {
		return NewAlfaBank(f, fetcher, log)
	},
}

// Sources returns the registered source tags in alphabetical order
func Sources() []string {
	sources := make([]string, 0, len(registry))
	for s := range registry {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

// New builds the grabber described by spec
func New(spec entity.GrabberSpec, fetcher service.Fetcher, log logger.Logger) (entity.Grabber, error) {
	constructor, ok := registry[spec.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, spec.Source)
	}
	return constructor(filter.New(spec.BaseCurrencyCodes, spec.DestinationCurrencyCodes), fetcher, log), nil
}

// FromRecord rebuilds an exchange rate and its narrowed grabber. Observers
// are not part of the record and must be attached again.
func FromRecord(record entity.Record, fetcher service.Fetcher, log logger.Logger) (*entity.ExchangeRate, error) {
	g, err := New(record.Grabber, fetcher, log)
	if err != nil {
		return nil, fmt.Errorf("failed to restore grabber: %w", err)
	}

	return entity.NewExchangeRate(
		g,
		record.BaseCurrencyCode,
		record.DestinationCurrencyCode,
		record.BuyRate,
		record.SaleRate,
		record.Timestamp,
	), nil
}

// Restore decodes an exchange rate serialized with json.Marshal
func Restore(data []byte, fetcher service.Fetcher, log logger.Logger) (*entity.ExchangeRate, error) {
	var record entity.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode exchange rate: %w", err)
	}
	return FromRecord(record, fetcher, log)
}

// base carries what both strategies share: identity, filter and collaborators
type base struct {
	name    string
	filter  filter.RateFilter
	fetcher service.Fetcher
	log     logger.Logger
	now     func() time.Time
}

func newBase(name string, f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) base {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return base{
		name:    name,
		filter:  f,
		fetcher: fetcher,
		log:     log.WithField("source", name),
		now:     time.Now,
	}
}

// Spec returns the source tag and the filter's code lists
func (b *base) Spec() entity.GrabberSpec {
	return entity.GrabberSpec{
		Source:                   b.name,
		BaseCurrencyCodes:        b.filter.BaseCodes(),
		DestinationCurrencyCodes: b.filter.DestinationCodes(),
	}
}

// Filter returns the grabber's rate filter
func (b *base) Filter() filter.RateFilter {
	return b.filter
}

// SetClock replaces the time source used for request dates and timestamps
func (b *base) SetClock(now func() time.Time) {
	b.now = now
}

// quote is one extracted row before filtering
type quote struct {
	base        string
	destination string
	buy         float64
	sale        float64
}

// emit applies the filter and builds exchange rates owning a grabber narrowed
// to their pair
func (b *base) emit(quotes []quote, narrow func(filter.RateFilter) entity.Grabber) []*entity.ExchangeRate {
	timestamp := b.now()
	rates := make([]*entity.ExchangeRate, 0, len(quotes))

	for _, q := range quotes {
		if !b.filter.Accepts(q.base, q.destination) {
			continue
		}
		rates = append(rates, entity.NewExchangeRate(
			narrow(filter.Pair(q.base, q.destination)),
			q.base,
			q.destination,
			q.buy,
			q.sale,
			timestamp,
		))
	}

	b.log.Debug("Exchange rates extracted", map[string]interface{}{
		"extracted": len(quotes),
		"accepted":  len(rates),
	})

	return rates
}
