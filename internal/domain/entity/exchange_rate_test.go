// internal/domain/entity/exchange_rate_test.go
package entity_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newGrabber(source string) *mocks.MockGrabber {
	g := new(mocks.MockGrabber)
	g.On("Spec").Return(entity.GrabberSpec{
		Source:                   source,
		BaseCurrencyCodes:        []string{"UAH"},
		DestinationCurrencyCodes: []string{"USD"},
	}).Maybe()
	return g
}

// recorder keeps the order in which events arrive
type recorder struct {
	events *[]string
	name   string
}

func (r *recorder) ExchangeRateCreated(current entity.Snapshot) error {
	*r.events = append(*r.events, r.name+":created")
	return nil
}

func (r *recorder) ExchangeRateUpdated(previous, current entity.Snapshot) error {
	*r.events = append(*r.events, r.name+":updated")
	return nil
}

func (r *recorder) ExchangeRateChanged(previous, current entity.Snapshot) error {
	*r.events = append(*r.events, r.name+":changed")
	return nil
}

func TestNewExchangeRate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, ts)

	assert.Equal(t, "nbu", rate.Source())
	assert.Equal(t, "UAH", rate.BaseCurrencyCode())
	assert.Equal(t, "USD", rate.DestinationCurrencyCode())
	assert.Equal(t, 27.5, rate.BuyRate())
	assert.Equal(t, 27.8, rate.SaleRate())
	assert.Equal(t, ts, rate.Timestamp())
	assert.Equal(t, entity.Key{Source: "nbu", Base: "UAH", Destination: "USD"}, rate.Key())

	t.Run("Zero timestamp defaults to now", func(t *testing.T) {
		before := time.Now()
		rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 1, 1, time.Time{})
		assert.False(t, rate.Timestamp().Before(before))
	})

	t.Run("Same base and destination is tolerated", func(t *testing.T) {
		rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "UAH", 1, 1, ts)
		assert.Equal(t, rate.BaseCurrencyCode(), rate.DestinationCurrencyCode())
	})
}

func TestUpdateExchangeRate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Difference below epsilon only updates", func(t *testing.T) {
		rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, ts)
		var events []string
		rate.Attach(&recorder{events: &events, name: "a"})

		err := rate.UpdateExchangeRate(27.5+entity.Epsilon/2, 27.8, ts.Add(time.Minute))

		require.NoError(t, err)
		assert.Equal(t, []string{"a:updated"}, events)
		assert.Equal(t, ts.Add(time.Minute), rate.Timestamp())
	})

	t.Run("Real change updates then changes", func(t *testing.T) {
		rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, ts)
		var events []string
		rate.Attach(&recorder{events: &events, name: "a"})
		rate.Attach(&recorder{events: &events, name: "b"})

		err := rate.UpdateExchangeRate(27.6, 27.8, ts)

		require.NoError(t, err)
		assert.Equal(t, []string{"a:updated", "b:updated", "a:changed", "b:changed"}, events)
		assert.Equal(t, 27.6, rate.BuyRate())
	})

	t.Run("Observers receive previous and current snapshots", func(t *testing.T) {
		rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, ts)
		observer := new(mocks.MockObserver)
		observer.On("ExchangeRateUpdated", mock.Anything, mock.Anything).Return(nil)
		observer.On("ExchangeRateChanged", mock.MatchedBy(func(s entity.Snapshot) bool {
			return s.SaleRate == 27.8
		}), mock.MatchedBy(func(s entity.Snapshot) bool {
			return s.SaleRate == 28.0
		})).Return(nil)
		rate.Attach(observer)

		require.NoError(t, rate.UpdateExchangeRate(27.5, 28.0, ts))
		observer.AssertExpectations(t)
	})

	t.Run("Failing observer does not stop the others", func(t *testing.T) {
		rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, ts)
		var events []string
		failing := &entity.ObserverFuncs{
			OnUpdated: func(previous, current entity.Snapshot) error {
				return errors.New("boom")
			},
		}
		panicking := &entity.ObserverFuncs{
			OnChanged: func(previous, current entity.Snapshot) error {
				panic("kaboom")
			},
		}
		rate.Attach(failing)
		rate.Attach(panicking)
		rate.Attach(&recorder{events: &events, name: "c"})

		err := rate.UpdateExchangeRate(30, 31, ts)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Contains(t, err.Error(), "kaboom")
		assert.True(t, entity.ObserverFaults(err))

		var observerErr *entity.ObserverError
		require.ErrorAs(t, err, &observerErr)
		assert.Equal(t, "updated", observerErr.Event)
		assert.Equal(t, []string{"c:updated", "c:changed"}, events)
		assert.Equal(t, 30.0, rate.BuyRate())
	})
}

func TestAttachDetach(t *testing.T) {
	rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, time.Now())
	var events []string
	r := &recorder{events: &events, name: "a"}

	require.NoError(t, rate.Attach(r))
	require.NoError(t, rate.Attach(r))
	require.NoError(t, rate.UpdateExchangeRate(28, 28, time.Time{}))
	assert.Equal(t, []string{"a:updated", "a:changed"}, events)

	events = events[:0]
	rate.Detach(r)
	rate.Detach(r)
	rate.Detach(&recorder{events: &events, name: "unknown"})
	require.NoError(t, rate.UpdateExchangeRate(29, 29, time.Time{}))
	assert.Empty(t, events)
}

// sliceObserver has value receivers and a slice field, so its values
// cannot be compared
type sliceObserver struct {
	seen []string
}

func (o sliceObserver) ExchangeRateCreated(current entity.Snapshot) error { return nil }

func (o sliceObserver) ExchangeRateUpdated(previous, current entity.Snapshot) error {
	o.seen[0] = "updated"
	return nil
}

func (o sliceObserver) ExchangeRateChanged(previous, current entity.Snapshot) error { return nil }

func TestAttachRejectsUncomparableObservers(t *testing.T) {
	rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, time.Now())
	observer := sliceObserver{seen: make([]string, 1)}

	assert.NotPanics(t, func() {
		err := rate.Attach(observer)
		assert.ErrorIs(t, err, entity.ErrObserverNotComparable)
		assert.Contains(t, err.Error(), "sliceObserver")

		err = rate.Attach(observer)
		assert.ErrorIs(t, err, entity.ErrObserverNotComparable)

		rate.Detach(observer)
	})

	assert.ErrorIs(t, rate.Attach(nil), entity.ErrObserverNotComparable)
	assert.NotPanics(t, func() { rate.Detach(nil) })

	require.NoError(t, rate.UpdateExchangeRate(28, 28, time.Time{}))
	assert.Empty(t, observer.seen[0])
}

func TestNotifyCreated(t *testing.T) {
	rate := entity.NewExchangeRate(newGrabber("nbu"), "UAH", "USD", 27.5, 27.8, time.Now())
	observer := new(mocks.MockObserver)
	observer.On("ExchangeRateCreated", rate.Snapshot()).Return(nil)
	rate.Attach(observer)

	require.NoError(t, rate.NotifyCreated())
	observer.AssertExpectations(t)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Zero results", func(t *testing.T) {
		g := newGrabber("nbu")
		rate := entity.NewExchangeRate(g, "UAH", "USD", 27.5, 27.8, ts)
		g.On("GetExchangeRates", ctx).Return([]*entity.ExchangeRate{}, nil)

		err := rate.Refresh(ctx)

		assert.ErrorIs(t, err, entity.ErrUnexpectedResultCount)
		assert.Contains(t, err.Error(), "but 0 was found")
		assert.Equal(t, 27.5, rate.BuyRate())
	})

	t.Run("Two results", func(t *testing.T) {
		g := newGrabber("nbu")
		rate := entity.NewExchangeRate(g, "UAH", "USD", 27.5, 27.8, ts)
		g.On("GetExchangeRates", ctx).Return([]*entity.ExchangeRate{
			entity.NewExchangeRate(g, "UAH", "USD", 1, 1, ts),
			entity.NewExchangeRate(g, "UAH", "USD", 2, 2, ts),
		}, nil)

		err := rate.Refresh(ctx)

		var countErr *entity.ResultCountError
		require.ErrorAs(t, err, &countErr)
		assert.Equal(t, 2, countErr.Found)
	})

	t.Run("One result updates the rate", func(t *testing.T) {
		g := newGrabber("nbu")
		rate := entity.NewExchangeRate(g, "UAH", "USD", 27.5, 27.8, ts)
		later := ts.Add(time.Hour)
		g.On("GetExchangeRates", ctx).Return([]*entity.ExchangeRate{
			entity.NewExchangeRate(g, "UAH", "USD", 27.6, 27.9, later),
		}, nil)
		var events []string
		rate.Attach(&recorder{events: &events, name: "a"})

		require.NoError(t, rate.Refresh(ctx))

		assert.Equal(t, 27.6, rate.BuyRate())
		assert.Equal(t, 27.9, rate.SaleRate())
		assert.Equal(t, later, rate.Timestamp())
		assert.Equal(t, []string{"a:updated", "a:changed"}, events)
	})

	t.Run("Grabber error is wrapped", func(t *testing.T) {
		g := newGrabber("nbu")
		rate := entity.NewExchangeRate(g, "UAH", "USD", 27.5, 27.8, ts)
		g.On("GetExchangeRates", ctx).Return(nil, &entity.FetchError{URL: "https://bank.gov.ua", StatusCode: 503})

		err := rate.Refresh(ctx)

		assert.ErrorIs(t, err, entity.ErrFetchFailed)
		assert.Contains(t, err.Error(), "nbu:UAH:USD")
		assert.False(t, entity.ObserverFaults(err))
	})
}

func TestMarshalJSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rate := entity.NewExchangeRate(newGrabber("oschadbank"), "UAH", "USD", 27.5, 27.8, ts)

	data, err := json.Marshal(rate)
	require.NoError(t, err)

	var record entity.Record
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "oschadbank", record.Grabber.Source)
	assert.Equal(t, []string{"UAH"}, record.Grabber.BaseCurrencyCodes)
	assert.Equal(t, "USD", record.DestinationCurrencyCode)
	assert.Equal(t, 27.8, record.SaleRate)
	assert.True(t, ts.Equal(record.Timestamp))
}

func TestParseKey(t *testing.T) {
	key, err := entity.ParseKey("nbu:UAH:USD")
	require.NoError(t, err)
	assert.Equal(t, entity.Key{Source: "nbu", Base: "UAH", Destination: "USD"}, key)

	_, err = entity.ParseKey("nbu:UAH")
	assert.Error(t, err)
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{"Fetch", &entity.FetchError{URL: "https://x", StatusCode: 500}, entity.ErrFetchFailed, "https://x returned status 500"},
		{"Payload", &entity.PayloadError{Source: "privatbank", Err: errors.New("eof")}, entity.ErrMalformedPayload, "privatbank"},
		{"Layout item", &entity.LayoutError{Source: "nbu", Query: "//tr"}, entity.ErrSourceLayoutChanged, "//tr was not found"},
		{"Layout field", &entity.LayoutError{Source: "nbu", Field: "buy", Query: "td[5]", Found: 2}, entity.ErrSourceLayoutChanged, "matched 2 nodes"},
		{"Field", &entity.FieldError{Field: "base", Value: "usd", Reason: "not a currency code"}, entity.ErrInvalidFieldValue, `base "usd"`},
		{"Result count", &entity.ResultCountError{Source: "nbu", Found: 0}, entity.ErrUnexpectedResultCount, "expected 1 exchange rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Contains(t, tt.err.Error(), tt.contains)
		})
	}
}
