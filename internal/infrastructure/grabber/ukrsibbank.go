package grabber

import (
	"net/http"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

// ukrSibBank labels codes with extra markup, so only the first text node of
// each cell is read and everything but the letters is dropped
type ukrSibBank struct{}

// NewUkrSibBank creates a grabber for UkrSibbank
func NewUkrSibBank(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *MarkupGrabber {
	return NewMarkupGrabber(ukrSibBank{}, f, fetcher, log)
}

func (ukrSibBank) Name() string { return SourceUkrSibBank }

func (ukrSibBank) Request(time.Time) service.Request {
	return service.Request{
		Method:         http.MethodGet,
		URL:            "https://my.ukrsibbank.com/ua/personal/operations/currency_exchange/",
		ConnectTimeout: requestTimeout,
		Timeout:        requestTimeout,
	}
}

func (ukrSibBank) Layout() MarkupLayout {
	return MarkupLayout{
		ItemQuery: "//table[@class='currency__table']/tbody/tr",
		Base:      MarkupField{Fixed: "UAH"},
		Destination: MarkupField{
			Query:     "td[1]/text()[1]",
			Normalize: []validation.Normalizer{validation.StripNonLetters},
		},
		Buy:  MarkupField{Query: "td[2]/text()[1]"},
		Sale: MarkupField{Query: "td[3]/text()[1]"},
	}
}
