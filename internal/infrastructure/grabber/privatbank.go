package grabber

import (
	"net/http"
	"net/url"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

// privatBank reads the PrivatBank public cash rates API
type privatBank struct{}

// NewPrivatBank creates a grabber for PrivatBank
func NewPrivatBank(f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *StructuredGrabber {
	return NewStructuredGrabber(privatBank{}, f, fetcher, log)
}

func (privatBank) Name() string { return SourcePrivatBank }

func (privatBank) Request(time.Time) service.Request {
	return service.Request{
		Method: http.MethodGet,
		URL:    "https://api.privatbank.ua/p24api/pubinfo",
		Query: url.Values{
			"json":     {""},
			"exchange": {""},
			"coursid":  {"5"},
		},
		ConnectTimeout: requestTimeout,
		Timeout:        requestTimeout,
	}
}

func (privatBank) Layout() StructuredLayout {
	return StructuredLayout{
		Base:        StructuredField{Key: "base_ccy"},
		Destination: StructuredField{Key: "ccy"},
		Buy:         StructuredField{Key: "buy", Normalize: []validation.Normalizer{validation.TrimSpace}},
		Sale:        StructuredField{Key: "sale", Normalize: []validation.Normalizer{validation.TrimSpace}},
	}
}
