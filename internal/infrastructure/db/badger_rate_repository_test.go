// internal/infrastructure/db/badger_rate_repository_test.go
package db

import (
	"context"
	"testing"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/repository"
	"github.com/damon-houk/exchange-rate-grabber/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) *BadgerRateRepository {
	t.Helper()

	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewBadgerRateRepository(db)
}

func newRate(dest string, buy float64, ts time.Time) *entity.ExchangeRate {
	g := new(mocks.MockGrabber)
	g.On("Spec").Return(entity.GrabberSpec{
		Source:                   "nbu",
		BaseCurrencyCodes:        []string{"UAH"},
		DestinationCurrencyCodes: []string{dest},
	})
	return entity.NewExchangeRate(g, "UAH", dest, buy, buy, ts)
}

func TestBadgerRateRepository_Rates(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	usd := newRate("USD", 37.5, ts)
	eur := newRate("EUR", 40.1, ts)

	require.NoError(t, repo.StoreRate(ctx, usd))
	require.NoError(t, repo.StoreRate(ctx, eur))

	// Storing again overwrites
	require.NoError(t, usd.UpdateExchangeRate(37.6, 37.6, ts.Add(time.Hour)))
	require.NoError(t, repo.StoreRate(ctx, usd))

	records, err := repo.FindRates(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "EUR", records[0].DestinationCurrencyCode)
	assert.Equal(t, "USD", records[1].DestinationCurrencyCode)
	assert.Equal(t, 37.6, records[1].BuyRate)
	assert.Equal(t, "nbu", records[1].Grabber.Source)
	assert.Equal(t, []string{"USD"}, records[1].Grabber.DestinationCurrencyCodes)

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.StoreSnapshot(ctx, eur.Snapshot()))
		require.NoError(t, repo.DeleteRate(ctx, eur.Key()))

		records, err := repo.FindRates(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)

		history, err := repo.FindHistory(ctx, eur.Key(), 0)
		require.NoError(t, err)
		assert.Empty(t, history)

		err = repo.DeleteRate(ctx, eur.Key())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestBadgerRateRepository_History(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	usd := newRate("USD", 37.5, ts)
	other := newRate("EUR", 40.1, ts)
	require.NoError(t, repo.StoreSnapshot(ctx, other.Snapshot()))

	for i := 0; i < 5; i++ {
		require.NoError(t, usd.UpdateExchangeRate(37.5+float64(i), 38, ts.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, repo.StoreSnapshot(ctx, usd.Snapshot()))
	}

	t.Run("Newest first", func(t *testing.T) {
		history, err := repo.FindHistory(ctx, usd.Key(), 0)
		require.NoError(t, err)
		require.Len(t, history, 5)
		assert.Equal(t, 41.5, history[0].BuyRate)
		assert.Equal(t, 37.5, history[4].BuyRate)
		assert.True(t, history[0].Timestamp.After(history[1].Timestamp))
	})

	t.Run("Limit", func(t *testing.T) {
		history, err := repo.FindHistory(ctx, usd.Key(), 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, 40.5, history[1].BuyRate)
	})

	t.Run("Unknown rate", func(t *testing.T) {
		history, err := repo.FindHistory(ctx, entity.Key{Source: "nbu", Base: "UAH", Destination: "PLN"}, 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}
