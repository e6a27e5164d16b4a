package grabber

import (
	"net/http"
	"net/url"
	"time"
	_ "time/tzdata"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

var kyiv = loadKyiv()

func loadKyiv() *time.Location {
	for _, name := range []string{"Europe/Kyiv", "Europe/Kiev"} {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("EET", 2*60*60)
}

// nbu reads the official daily rates of the National Bank of Ukraine.
// The official rate is both buy and sale.
type nbu struct{}

// NewNBU creates a grabber for the National Bank of Ukraine
func NewNBU(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *MarkupGrabber {
	return NewMarkupGrabber(nbu{}, f, fetcher, log)
}

func (nbu) Name() string { return SourceNBU }

// Request asks for the rates of the current day in Kyiv
func (nbu) Request(now time.Time) service.Request {
	return service.Request{
		Method: http.MethodGet,
		URL:    "https://bank.gov.ua/ua/markets/exchangerates",
		Query: url.Values{
			"date":   {now.In(kyiv).Format("02.01.2006")},
			"period": {"daily"},
		},
		ConnectTimeout: requestTimeout,
		Timeout:        requestTimeout,
	}
}

func (nbu) Layout() MarkupLayout {
	rate := MarkupField{
		Query:     "td[5]",
		Normalize: []validation.Normalizer{validation.TrimSpace, validation.CommaDecimal},
	}
	return MarkupLayout{
		ItemQuery:   "//table[@id='exchangeRates']/tbody/tr",
		Base:        MarkupField{Fixed: "UAH"},
		Destination: MarkupField{Query: "td[2]"},
		Buy:         rate,
		Sale:        rate,
		Unit: &MarkupField{
			Query:     "td[3]",
			Normalize: []validation.Normalizer{validation.TrimSpace, validation.CommaDecimal},
		},
	}
}
