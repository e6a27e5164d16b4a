package grabber

import (
	"context"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-grabber/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

var fixedTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// tableSource is a markup source over a simple rates table
type tableSource struct {
	layout MarkupLayout
}

func (tableSource) Name() string { return "table" }

func (tableSource) Request(time.Time) service.Request {
	return service.Request{Method: "GET", URL: "https://rates.example/table"}
}

func (s tableSource) Layout() MarkupLayout { return s.layout }

func tableLayout() MarkupLayout {
	return MarkupLayout{
		ItemQuery: "//table[@id='rates']/tbody/tr",
		Skip: func(fragment *html.Node) bool {
			return htmlquery.FindOne(fragment, "td") == nil
		},
		Base:        MarkupField{Fixed: "UAH"},
		Destination: MarkupField{Query: "td[1]"},
		Buy:         MarkupField{Query: "td[2]"},
		Sale:        MarkupField{Query: "td[3]"},
	}
}

const ratesTable = `<html><body>
<table id="rates">
  <tr><th>Code</th><th>Buy</th><th>Sale</th></tr>
  <tr><td> USD </td><td>27.50</td><td>27.80</td></tr>
  <tr><td>EUR</td><td>30.10</td><td>30.60</td></tr>
</table>
</body></html>`

func newTableGrabber(t *testing.T, layout MarkupLayout, f filter.RateFilter, body string) (*MarkupGrabber, *mocks.MockFetcher) {
	t.Helper()

	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return([]byte(body), nil)

	g := NewMarkupGrabber(tableSource{layout: layout}, f, fetcher, logger.NewNopLogger())
	g.SetClock(func() time.Time { return fixedTime })
	return g, fetcher
}

func TestMarkupGrabber_GetExchangeRates(t *testing.T) {
	ctx := context.Background()

	t.Run("Extracts accepted rows", func(t *testing.T) {
		g, _ := newTableGrabber(t, tableLayout(), filter.New([]string{"UAH"}, []string{"USD"}), ratesTable)

		rates, err := g.GetExchangeRates(ctx)

		require.NoError(t, err)
		require.Len(t, rates, 1)
		assert.Equal(t, "table", rates[0].Source())
		assert.Equal(t, "UAH", rates[0].BaseCurrencyCode())
		assert.Equal(t, "USD", rates[0].DestinationCurrencyCode())
		assert.Equal(t, 27.50, rates[0].BuyRate())
		assert.Equal(t, 27.80, rates[0].SaleRate())
		assert.Equal(t, fixedTime, rates[0].Timestamp())
	})

	t.Run("Unrestricted filter keeps every row", func(t *testing.T) {
		g, _ := newTableGrabber(t, tableLayout(), filter.New(nil, nil), ratesTable)

		rates, err := g.GetExchangeRates(ctx)

		require.NoError(t, err)
		assert.Len(t, rates, 2)
	})

	t.Run("Unit divisor", func(t *testing.T) {
		layout := tableLayout()
		layout.Unit = &MarkupField{Query: "td[4]"}
		body := `<table id="rates"><tr><td>USD</td><td>275.0</td><td>278.0</td><td>10</td></tr></table>`
		g, _ := newTableGrabber(t, layout, filter.New(nil, nil), body)

		rates, err := g.GetExchangeRates(ctx)

		require.NoError(t, err)
		require.Len(t, rates, 1)
		assert.Equal(t, 27.5, rates[0].BuyRate())
		assert.Equal(t, 27.8, rates[0].SaleRate())
	})

	t.Run("No fragments means the layout changed", func(t *testing.T) {
		g, _ := newTableGrabber(t, tableLayout(), filter.New(nil, nil), `<html><body><p>maintenance</p></body></html>`)

		rates, err := g.GetExchangeRates(ctx)

		assert.Nil(t, rates)
		assert.ErrorIs(t, err, entity.ErrSourceLayoutChanged)
		assert.Contains(t, err.Error(), "//table[@id='rates']/tbody/tr")
	})

	t.Run("Field matching several nodes", func(t *testing.T) {
		layout := tableLayout()
		layout.Buy = MarkupField{Query: "td"}
		g, _ := newTableGrabber(t, layout, filter.New(nil, nil), ratesTable)

		_, err := g.GetExchangeRates(ctx)

		var layoutErr *entity.LayoutError
		require.ErrorAs(t, err, &layoutErr)
		assert.Equal(t, "buy", layoutErr.Field)
		assert.Equal(t, 3, layoutErr.Found)
	})

	t.Run("Invalid XPath is a layout error", func(t *testing.T) {
		layout := tableLayout()
		layout.Sale = MarkupField{Query: "td[[3"}
		g, _ := newTableGrabber(t, layout, filter.New(nil, nil), ratesTable)

		_, err := g.GetExchangeRates(ctx)

		assert.ErrorIs(t, err, entity.ErrSourceLayoutChanged)
		assert.Contains(t, err.Error(), "td[[3")
	})

	t.Run("Invalid currency code", func(t *testing.T) {
		body := `<table id="rates"><tr><td>Dollar</td><td>27.50</td><td>27.80</td></tr></table>`
		g, _ := newTableGrabber(t, tableLayout(), filter.New(nil, nil), body)

		_, err := g.GetExchangeRates(ctx)

		assert.ErrorIs(t, err, entity.ErrInvalidFieldValue)
		assert.Contains(t, err.Error(), "destination")
	})

	t.Run("Invalid rate", func(t *testing.T) {
		body := `<table id="rates"><tr><td>USD</td><td>n/a</td><td>27.80</td></tr></table>`
		g, _ := newTableGrabber(t, tableLayout(), filter.New(nil, nil), body)

		_, err := g.GetExchangeRates(ctx)

		var fieldErr *entity.FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "buy", fieldErr.Field)
	})

	t.Run("Destination placeholder and normalizers", func(t *testing.T) {
		layout := tableLayout()
		layout.Buy = MarkupField{
			Query:     "td/span[@data-rate='{destination}_BUY']",
			Normalize: []validation.Normalizer{validation.CommaDecimal},
		}
		layout.Sale = MarkupField{
			Query:     "td/span[@data-rate='{destination}_SALE']",
			Normalize: []validation.Normalizer{validation.CommaDecimal},
		}
		body := `<table id="rates"><tr><td>USD</td><td><span data-rate="USD_BUY">27,50</span><span data-rate="USD_SALE">27,80</span></td></tr></table>`
		g, _ := newTableGrabber(t, layout, filter.New(nil, nil), body)

		rates, err := g.GetExchangeRates(ctx)

		require.NoError(t, err)
		require.Len(t, rates, 1)
		assert.Equal(t, 27.8, rates[0].SaleRate())
	})

	t.Run("Fetch error is returned unchanged", func(t *testing.T) {
		fetcher := new(mocks.MockFetcher)
		fetcher.On("Fetch", mock.Anything, mock.Anything).
			Return(nil, &entity.FetchError{URL: "https://rates.example/table", StatusCode: 500})
		g := NewMarkupGrabber(tableSource{layout: tableLayout()}, filter.New(nil, nil), fetcher, logger.NewNopLogger())

		_, err := g.GetExchangeRates(ctx)

		assert.ErrorIs(t, err, entity.ErrFetchFailed)
	})
}

func TestMarkupGrabber_Idempotent(t *testing.T) {
	ctx := context.Background()
	g, _ := newTableGrabber(t, tableLayout(), filter.New(nil, nil), ratesTable)

	first, err := g.GetExchangeRates(ctx)
	require.NoError(t, err)
	second, err := g.GetExchangeRates(ctx)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Snapshot(), second[i].Snapshot())
	}
}

func TestMarkupGrabber_NarrowedGrabber(t *testing.T) {
	ctx := context.Background()
	g, fetcher := newTableGrabber(t, tableLayout(), filter.New(nil, nil), ratesTable)

	rates, err := g.GetExchangeRates(ctx)
	require.NoError(t, err)
	require.Len(t, rates, 2)

	eur := rates[1]
	assert.Equal(t, entity.GrabberSpec{
		Source:                   "table",
		BaseCurrencyCodes:        []string{"UAH"},
		DestinationCurrencyCodes: []string{"EUR"},
	}, eur.Grabber().Spec())
	assert.Equal(t, entity.GrabberSpec{Source: "table"}, g.Spec())

	var changed int
	require.NoError(t, eur.Attach(&entity.ObserverFuncs{
		OnChanged: func(previous, current entity.Snapshot) error {
			changed++
			return nil
		},
	}))
	require.NoError(t, eur.Refresh(ctx))
	assert.Equal(t, 0, changed)
	assert.Equal(t, 30.10, eur.BuyRate())
	fetcher.AssertNumberOfCalls(t, "Fetch", 2)
}
