package grabber

import (
	"net/http"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
	"golang.org/x/net/html"
)

// ukrGasBank encodes the currency in an "icon icon-usd" class and the unit
// in a "100 USD" label
type ukrGasBank struct{}

// NewUkrGasBank creates a grabber for Ukrgasbank
func NewUkrGasBank(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *MarkupGrabber {
	return NewMarkupGrabber(ukrGasBank{}, f, fetcher, log)
}

func (ukrGasBank) Name() string { return SourceUkrGasBank }

func (ukrGasBank) Request(time.Time) service.Request {
	return service.Request{
		Method:         http.MethodGet,
		URL:            "https://www.ukrgasbank.com/kurs/",
		ConnectTimeout: requestTimeout,
		Timeout:        requestTimeout,
	}
}

func (ukrGasBank) Layout() MarkupLayout {
	return MarkupLayout{
		// the parser wraps bare rows in tbody
		ItemQuery: "//div[contains(@class, 'kurs') and contains(@class, 'kurs-full')]/table//tr",
		Skip:      withoutCells,
		Base:      MarkupField{Fixed: "UAH"},
		Destination: MarkupField{
			Query:     "td[1][contains(@class, 'icon')]",
			Attr:      "class",
			Normalize: []validation.Normalizer{validation.ClassToken("icon-"), validation.Upper},
		},
		Buy:  MarkupField{Query: "td[3]"},
		Sale: MarkupField{Query: "td[4]"},
		Unit: &MarkupField{
			Query:     "td[2]",
			Normalize: []validation.Normalizer{validation.LeadingInteger},
		},
	}
}

func withoutCells(fragment *html.Node) bool {
	return htmlquery.FindOne(fragment, "td") == nil
}
