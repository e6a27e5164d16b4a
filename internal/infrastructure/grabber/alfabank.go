package grabber

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

const alfaRateQuery = "div[@class='exchange-data-currency-block']/div[@class='exchange-data-currency-item']" +
	"/div[@class='currency-item-number']/span[@class='rate-number' and @data-currency='" + DestinationPlaceholder + "_%s']"

type alfaBank struct{}

// NewAlfaBank creates a grabber for Alfa-Bank
func NewAlfaBank(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *MarkupGrabber {
	return NewMarkupGrabber(alfaBank{}, f, fetcher, log)
}

func (alfaBank) Name() string { return SourceAlfaBank }

func (alfaBank) Request(time.Time) service.Request {
	return service.Request{
		Method:         http.MethodGet,
		URL:            "https://alfabank.ua/currency-exchange",
		Query:          url.Values{"refId": {"MainpageExchangerate"}},
		ConnectTimeout: requestTimeout,
		Timeout:        requestTimeout,
	}
}

func (alfaBank) Layout() MarkupLayout {
	return MarkupLayout{
		ItemQuery:   "//div[contains(@class, 'exchange-data') and contains(@class, 'department')]/div[@class='exchange-data-item']",
		Base:        MarkupField{Fixed: "UAH"},
		Destination: MarkupField{Query: "div[@class='exchange-data-currency']"},
		Buy:         MarkupField{Query: fmt.Sprintf(alfaRateQuery, "BUY")},
		Sale:        MarkupField{Query: fmt.Sprintf(alfaRateQuery, "SALE")},
	}
}
