package cache

import (
	"testing"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/mocks"
	"github.com/stretchr/testify/assert"
)

func newRate(source, dest string) *entity.ExchangeRate {
	g := new(mocks.MockGrabber)
	g.On("Spec").Return(entity.GrabberSpec{Source: source})
	return entity.NewExchangeRate(g, "UAH", dest, 27.5, 27.8, time.Now())
}

func TestExchangeRateCache(t *testing.T) {
	cache := NewExchangeRateCache(time.Hour)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	assert.Equal(t, 0, cache.Size())

	usd := newRate("nbu", "USD")
	tracked, added := cache.Put(usd)
	assert.True(t, added)
	assert.Same(t, usd, tracked)
	assert.Equal(t, 1, cache.Size())

	// A second rate for the same key does not replace the tracked one
	tracked, added = cache.Put(newRate("nbu", "USD"))
	assert.False(t, added)
	assert.Same(t, usd, tracked)

	retrieved, ok := cache.Get(usd.Key())
	assert.True(t, ok)
	assert.Same(t, usd, retrieved)

	_, ok = cache.Get(entity.Key{Source: "nbu", Base: "UAH", Destination: "GBP"})
	assert.False(t, ok)

	// Staleness
	assert.False(t, cache.IsStale(usd.Key()))
	assert.True(t, cache.IsStale(entity.Key{Source: "nbu", Base: "UAH", Destination: "GBP"}))

	now = now.Add(2 * time.Hour)
	assert.True(t, cache.IsStale(usd.Key()))
	assert.Equal(t, []entity.Key{usd.Key()}, cache.StaleKeys())

	cache.Touch(usd.Key())
	assert.False(t, cache.IsStale(usd.Key()))
	assert.Empty(t, cache.StaleKeys())

	cache.SetStaleAfter(time.Minute)
	now = now.Add(2 * time.Minute)
	assert.True(t, cache.IsStale(usd.Key()))

	// Ordering
	eur := newRate("nbu", "EUR")
	cache.Put(eur)
	assert.Equal(t, []*entity.ExchangeRate{eur, usd}, cache.Rates())

	removed, ok := cache.Remove(eur.Key())
	assert.True(t, ok)
	assert.Same(t, eur, removed)
	_, ok = cache.Remove(eur.Key())
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}
