package grabber

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// DestinationPlaceholder in a field query is replaced by the destination
// code already extracted from the same fragment
const DestinationPlaceholder = "{destination}"

// MarkupSource describes an institution publishing rates as HTML
type MarkupSource interface {
	Name() string
	Request(now time.Time) service.Request
	Layout() MarkupLayout
}

// MarkupLayout tells the markup strategy where the values live
type MarkupLayout struct {
	// ItemQuery selects one fragment per currency pair in the document
	ItemQuery string
	// Skip vetoes fragments such as header rows; nil keeps every fragment
	Skip        func(fragment *html.Node) bool
	Base        MarkupField
	Destination MarkupField
	Buy         MarkupField
	Sale        MarkupField
	// Unit, when set, divides buy and sale
	Unit *MarkupField
}

// MarkupField locates one value relative to a fragment. A non-empty Fixed
// value is used as is; otherwise Query must match exactly one node whose
// text, or attribute Attr when set, is passed through Normalize.
type MarkupField struct {
	Query     string
	Fixed     string
	Attr      string
	Normalize []validation.Normalizer
}

// MarkupGrabber extracts rates from an HTML document with XPath queries
type MarkupGrabber struct {
	base
	source MarkupSource
}

// NewMarkupGrabber creates a grabber for an HTML source
func NewMarkupGrabber(source MarkupSource, f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *MarkupGrabber {
	return &MarkupGrabber{
		base:   newBase(source.Name(), f, fetcher, log),
		source: source,
	}
}

// GetExchangeRates downloads the document and extracts every accepted rate
func (g *MarkupGrabber) GetExchangeRates(ctx context.Context) ([]*entity.ExchangeRate, error) {
	body, err := g.fetcher.Fetch(ctx, g.source.Request(g.now()))
	if err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &entity.PayloadError{Source: g.name, Err: err}
	}

	layout := g.source.Layout()

	fragments, err := htmlquery.QueryAll(doc, layout.ItemQuery)
	if err != nil || len(fragments) == 0 {
		return nil, &entity.LayoutError{Source: g.name, Query: layout.ItemQuery}
	}

	quotes := make([]quote, 0, len(fragments))
	for _, fragment := range fragments {
		if layout.Skip != nil && layout.Skip(fragment) {
			continue
		}

		q, err := g.extract(fragment, layout)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}

	return g.emit(quotes, g.narrow), nil
}

func (g *MarkupGrabber) narrow(f filter.RateFilter) entity.Grabber {
	narrowed := *g
	narrowed.filter = f
	return &narrowed
}

func (g *MarkupGrabber) extract(fragment *html.Node, layout MarkupLayout) (quote, error) {
	var q quote

	raw, err := g.value(fragment, "base", layout.Base, "")
	if err != nil {
		return q, err
	}
	if q.base, err = validation.CurrencyCode("base", raw); err != nil {
		return q, err
	}

	raw, err = g.value(fragment, "destination", layout.Destination, "")
	if err != nil {
		return q, err
	}
	if q.destination, err = validation.CurrencyCode("destination", raw); err != nil {
		return q, err
	}

	raw, err = g.value(fragment, "buy", layout.Buy, q.destination)
	if err != nil {
		return q, err
	}
	buy, err := validation.Rate("buy", raw)
	if err != nil {
		return q, err
	}

	raw, err = g.value(fragment, "sale", layout.Sale, q.destination)
	if err != nil {
		return q, err
	}
	sale, err := validation.Rate("sale", raw)
	if err != nil {
		return q, err
	}

	unit := decimal.NewFromInt(1)
	if layout.Unit != nil {
		raw, err = g.value(fragment, "unit", *layout.Unit, q.destination)
		if err != nil {
			return q, err
		}
		if unit, err = validation.Unit("unit", raw); err != nil {
			return q, err
		}
	}

	q.buy = validation.PerUnit(buy, unit)
	q.sale = validation.PerUnit(sale, unit)
	return q, nil
}

func (g *MarkupGrabber) value(fragment *html.Node, name string, field MarkupField, destination string) (string, error) {
	if field.Fixed != "" {
		return field.Fixed, nil
	}

	query := strings.ReplaceAll(field.Query, DestinationPlaceholder, destination)

	nodes, err := htmlquery.QueryAll(fragment, query)
	if err != nil {
		return "", &entity.LayoutError{Source: g.name, Field: name, Query: fmt.Sprintf("%s (%v)", query, err)}
	}
	if len(nodes) != 1 {
		return "", &entity.LayoutError{Source: g.name, Field: name, Query: query, Found: len(nodes)}
	}

	var raw string
	if field.Attr != "" {
		raw = htmlquery.SelectAttr(nodes[0], field.Attr)
	} else {
		raw = htmlquery.InnerText(nodes[0])
	}

	return validation.Apply(raw, field.Normalize...), nil
}
