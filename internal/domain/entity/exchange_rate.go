package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Epsilon is the smallest difference between two rates that counts as a change
var Epsilon = math.Nextafter(1, 2) - 1

// Grabber fetches exchange rates from one source. A grabber narrowed to a
// single currency pair is what an ExchangeRate uses to refresh itself.
type Grabber interface {
	// GetExchangeRates downloads and extracts every rate accepted by the grabber's filter
	GetExchangeRates(ctx context.Context) ([]*ExchangeRate, error)

	// Spec returns the source tag and filter needed to rebuild the grabber
	Spec() GrabberSpec
}

// GrabberSpec identifies a grabber: its source tag plus the allowed codes.
// Empty code lists mean no restriction.
type GrabberSpec struct {
	Source                   string   `json:"source"`
	BaseCurrencyCodes        []string `json:"base_currency_codes,omitempty"`
	DestinationCurrencyCodes []string `json:"destination_currency_codes,omitempty"`
}

// Key identifies a tracked rate
type Key struct {
	Source      string
	Base        string
	Destination string
}

// String returns source:base:destination
func (k Key) String() string {
	return k.Source + ":" + k.Base + ":" + k.Destination
}

// ParseKey is the inverse of Key.String
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("invalid rate key %q", s)
	}
	return Key{Source: parts[0], Base: parts[1], Destination: parts[2]}, nil
}

// Snapshot is an immutable copy of an exchange rate's values
type Snapshot struct {
	Source              string    `json:"source"`
	BaseCurrency        string    `json:"base_currency"`
	DestinationCurrency string    `json:"destination_currency"`
	BuyRate             float64   `json:"buy_rate"`
	SaleRate            float64   `json:"sale_rate"`
	Timestamp           time.Time `json:"timestamp"`
}

// Key returns the identity of the rate the snapshot was taken from
func (s Snapshot) Key() Key {
	return Key{Source: s.Source, Base: s.BaseCurrency, Destination: s.DestinationCurrency}
}

// IsChanged reports whether buy or sale moved by at least Epsilon
func IsChanged(previous, current Snapshot) bool {
	return !(math.Abs(current.BuyRate-previous.BuyRate) < Epsilon) ||
		!(math.Abs(current.SaleRate-previous.SaleRate) < Epsilon)
}

// Record is the serialized form of an ExchangeRate
type Record struct {
	Grabber                 GrabberSpec `json:"grabber"`
	BaseCurrencyCode        string      `json:"base_currency_code"`
	DestinationCurrencyCode string      `json:"destination_currency_code"`
	BuyRate                 float64     `json:"buy_rate"`
	SaleRate                float64     `json:"sale_rate"`
	Timestamp               time.Time   `json:"timestamp"`
}

// ExchangeRate is a buy/sale quotation for one currency pair at one source.
// It owns a grabber narrowed to its pair and notifies attached observers
// whenever it is updated.
type ExchangeRate struct {
	mu        sync.Mutex
	grabber   Grabber
	source    string
	base      string
	dest      string
	buy       float64
	sale      float64
	timestamp time.Time
	observers []Observer
}

// NewExchangeRate creates an exchange rate. A zero timestamp means now.
func NewExchangeRate(grabber Grabber, base, dest string, buy, sale float64, timestamp time.Time) *ExchangeRate {
	r := &ExchangeRate{
		grabber: grabber,
		base:    base,
		dest:    dest,
	}
	if grabber != nil {
		r.source = grabber.Spec().Source
	}
	r.set(buy, sale, timestamp)
	return r
}

// Attach registers an observer. Attaching the same observer twice is a no-op.
// Nil observers and observers whose values cannot be compared are rejected
// with ErrObserverNotComparable.
func (r *ExchangeRate) Attach(o Observer) error {
	if !isComparable(o) {
		return fmt.Errorf("%w: %T", ErrObserverNotComparable, o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.observers {
		if existing == o {
			return nil
		}
	}
	r.observers = append(r.observers, o)
	return nil
}

// Detach removes an observer. Unknown observers are ignored.
func (r *ExchangeRate) Detach(o Observer) {
	if !isComparable(o) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.observers {
		if existing == o {
			r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
			return
		}
	}
}

// NotifyCreated sends ExchangeRateCreated to every observer
func (r *ExchangeRate) NotifyCreated() error {
	r.mu.Lock()
	current := r.snapshot()
	observers := r.observerList()
	r.mu.Unlock()

	return notify(observers, "created", func(o Observer) error {
		return o.ExchangeRateCreated(current)
	})
}

// UpdateExchangeRate overwrites buy, sale and timestamp (zero means now),
// then notifies every observer with ExchangeRateUpdated and, if buy or sale
// moved by at least Epsilon, with ExchangeRateChanged. Every observer is
// notified even if earlier ones fail; their errors are combined.
func (r *ExchangeRate) UpdateExchangeRate(buy, sale float64, timestamp time.Time) error {
	r.mu.Lock()
	previous := r.snapshot()
	r.set(buy, sale, timestamp)
	current := r.snapshot()
	observers := r.observerList()
	r.mu.Unlock()

	err := notify(observers, "updated", func(o Observer) error {
		return o.ExchangeRateUpdated(previous, current)
	})

	if IsChanged(previous, current) {
		err = multierr.Append(err, notify(observers, "changed", func(o Observer) error {
			return o.ExchangeRateChanged(previous, current)
		}))
	}

	return err
}

// Refresh re-runs the narrowed grabber and applies the single rate it yields
func (r *ExchangeRate) Refresh(ctx context.Context) error {
	r.mu.Lock()
	grabber := r.grabber
	source := r.source
	r.mu.Unlock()

	if grabber == nil {
		return &ResultCountError{Source: source, Found: 0}
	}

	rates, err := grabber.GetExchangeRates(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", r.Key(), err)
	}

	if len(rates) != 1 {
		return &ResultCountError{Source: source, Found: len(rates)}
	}

	latest := rates[0]
	return r.UpdateExchangeRate(latest.BuyRate(), latest.SaleRate(), latest.Timestamp())
}

// Snapshot returns a copy of the current values
func (r *ExchangeRate) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Key returns the identity of the rate
func (r *ExchangeRate) Key() Key {
	return Key{Source: r.source, Base: r.base, Destination: r.dest}
}

// Record returns the serialized form of the rate
func (r *ExchangeRate) Record() Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var spec GrabberSpec
	if r.grabber != nil {
		spec = r.grabber.Spec()
	}

	return Record{
		Grabber:                 spec,
		BaseCurrencyCode:        r.base,
		DestinationCurrencyCode: r.dest,
		BuyRate:                 r.buy,
		SaleRate:                r.sale,
		Timestamp:               r.timestamp,
	}
}

// MarshalJSON encodes the rate as a Record
func (r *ExchangeRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record())
}

// Grabber returns the grabber narrowed to this rate's pair
func (r *ExchangeRate) Grabber() Grabber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grabber
}

// Source returns the tag of the source the rate was grabbed from
func (r *ExchangeRate) Source() string { return r.source }

// BaseCurrencyCode returns the code of the currency being quoted against
func (r *ExchangeRate) BaseCurrencyCode() string { return r.base }

// DestinationCurrencyCode returns the code of the quoted currency
func (r *ExchangeRate) DestinationCurrencyCode() string { return r.dest }

// BuyRate returns the rate at which the source buys the destination currency
func (r *ExchangeRate) BuyRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buy
}

// SaleRate returns the rate at which the source sells the destination currency
func (r *ExchangeRate) SaleRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sale
}

// Timestamp returns when the current values were published or grabbed
func (r *ExchangeRate) Timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timestamp
}

func (r *ExchangeRate) set(buy, sale float64, timestamp time.Time) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	r.buy = buy
	r.sale = sale
	r.timestamp = timestamp
}

func (r *ExchangeRate) snapshot() Snapshot {
	return Snapshot{
		Source:              r.source,
		BaseCurrency:        r.base,
		DestinationCurrency: r.dest,
		BuyRate:             r.buy,
		SaleRate:            r.sale,
		Timestamp:           r.timestamp,
	}
}

func isComparable(o Observer) bool {
	return o != nil && reflect.ValueOf(o).Comparable()
}

func (r *ExchangeRate) observerList() []Observer {
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	return observers
}

// notify calls fn for every observer in order, turning panics into errors
func notify(observers []Observer, event string, fn func(Observer) error) error {
	var err error
	for _, o := range observers {
		err = multierr.Append(err, call(o, event, fn))
	}
	return err
}

func call(o Observer, event string, fn func(Observer) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ObserverError{Observer: fmt.Sprintf("%T", o), Event: event, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if err := fn(o); err != nil {
		return &ObserverError{Observer: fmt.Sprintf("%T", o), Event: event, Err: err}
	}
	return nil
}

// ObserverFaults reports whether err consists only of observer errors
func ObserverFaults(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range multierr.Errors(err) {
		var oe *ObserverError
		if !errors.As(e, &oe) {
			return false
		}
	}
	return true
}
