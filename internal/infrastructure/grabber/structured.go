package grabber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/filter"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

// StructuredSource describes an institution publishing rates as a JSON array of objects
type StructuredSource interface {
	Name() string
	Request(now time.Time) service.Request
	Layout() StructuredLayout
}

// StructuredLayout names the keys holding each value
type StructuredLayout struct {
	Base        StructuredField
	Destination StructuredField
	Buy         StructuredField
	Sale        StructuredField
}

// StructuredField is either a Fixed value or a Key of every item
type StructuredField struct {
	Key       string
	Fixed     string
	Normalize []validation.Normalizer
}

// StructuredGrabber extracts rates from a JSON payload
type StructuredGrabber struct {
	base
	source StructuredSource
}

// NewStructuredGrabber creates a grabber for a JSON source
func NewStructuredGrabber(source StructuredSource, f filter.RateFilter, fetcher service.Fetcher, log logger.Logger) *StructuredGrabber {
	return &StructuredGrabber{
		base:   newBase(source.Name(), f, fetcher, log),
		source: source,
	}
}

// GetExchangeRates downloads the payload and extracts every accepted rate
func (g *StructuredGrabber) GetExchangeRates(ctx context.Context) ([]*entity.ExchangeRate, error) {
	body, err := g.fetcher.Fetch(ctx, g.source.Request(g.now()))
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var items []map[string]any
	if err := decoder.Decode(&items); err != nil {
		return nil, &entity.PayloadError{Source: g.name, Err: err}
	}
	if items == nil {
		return nil, &entity.PayloadError{Source: g.name, Err: errors.New("expected an array of items")}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, &entity.PayloadError{Source: g.name, Err: errors.New("unexpected data after the array of items")}
	}

	layout := g.source.Layout()

	quotes := make([]quote, 0, len(items))
	for _, item := range items {
		q, err := g.extract(item, layout)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}

	return g.emit(quotes, g.narrow), nil
}

func (g *StructuredGrabber) narrow(f filter.RateFilter) entity.Grabber {
	narrowed := *g
	narrowed.filter = f
	return &narrowed
}

func (g *StructuredGrabber) extract(item map[string]any, layout StructuredLayout) (quote, error) {
	var q quote

	raw, err := g.value(item, "base", layout.Base)
	if err != nil {
		return q, err
	}
	if q.base, err = validation.CurrencyCode("base", raw); err != nil {
		return q, err
	}

	raw, err = g.value(item, "destination", layout.Destination)
	if err != nil {
		return q, err
	}
	if q.destination, err = validation.CurrencyCode("destination", raw); err != nil {
		return q, err
	}

	raw, err = g.value(item, "buy", layout.Buy)
	if err != nil {
		return q, err
	}
	buy, err := validation.Rate("buy", raw)
	if err != nil {
		return q, err
	}

	raw, err = g.value(item, "sale", layout.Sale)
	if err != nil {
		return q, err
	}
	sale, err := validation.Rate("sale", raw)
	if err != nil {
		return q, err
	}

	q.buy, _ = buy.Float64()
	q.sale, _ = sale.Float64()
	return q, nil
}

func (g *StructuredGrabber) value(item map[string]any, name string, field StructuredField) (string, error) {
	if field.Fixed != "" {
		return field.Fixed, nil
	}

	v, ok := item[field.Key]
	if !ok {
		return "", &entity.LayoutError{Source: g.name, Field: name, Query: field.Key}
	}

	var raw string
	switch v := v.(type) {
	case string:
		raw = v
	case json.Number:
		raw = v.String()
	default:
		return "", &entity.FieldError{Field: name, Value: string(rawJSON(v)), Reason: "neither a string nor a number"}
	}

	return validation.Apply(raw, field.Normalize...), nil
}

func rawJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
