package grabber

import (
	"net/http"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

type oschadBank struct{}

// NewOschadBank creates a grabber for Oschadbank
func NewOschadBank(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *MarkupGrabber {
	return NewMarkupGrabber(oschadBank{}, f, fetcher, log)
}

func (oschadBank) Name() string { return SourceOschadBank }

func (oschadBank) Request(time.Time) service.Request {
	return service.Request{
		Method:         http.MethodGet,
		URL:            "https://www.oschadbank.ua/ua/private/currency",
		ConnectTimeout: requestTimeout,
		Timeout:        requestTimeout,
	}
}

func (oschadBank) Layout() MarkupLayout {
	return MarkupLayout{
		ItemQuery:   "//table[@id='currency_date_result']/tbody/tr",
		Base:        MarkupField{Fixed: "UAH"},
		Destination: MarkupField{Query: "td[1]"},
		Buy:         MarkupField{Query: "td[6]"},
		Sale:        MarkupField{Query: "td[7]"},
		Unit:        &MarkupField{Query: "td[4]"},
	}
}
