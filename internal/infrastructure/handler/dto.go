package handler

import (
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
)

// SourceResponse describes an enabled source and its default filter
type SourceResponse struct {
	Source                   string   `json:"source"`
	BaseCurrencyCodes        []string `json:"base_currency_codes"`
	DestinationCurrencyCodes []string `json:"destination_currency_codes"`
}

// RateResponse represents a tracked exchange rate
type RateResponse struct {
	Source              string  `json:"source"`
	BaseCurrency        string  `json:"base_currency"`
	DestinationCurrency string  `json:"destination_currency"`
	BuyRate             float64 `json:"buy_rate"`
	SaleRate            float64 `json:"sale_rate"`
	Timestamp           string  `json:"timestamp"`
}

// RatesResponse is the response of the list endpoints
type RatesResponse struct {
	Rates []RateResponse `json:"rates"`
	Count int            `json:"count"`
}

// HistoryResponse lists the recorded values of a rate, newest first
type HistoryResponse struct {
	Source              string         `json:"source"`
	BaseCurrency        string         `json:"base_currency"`
	DestinationCurrency string         `json:"destination_currency"`
	Snapshots           []RateResponse `json:"snapshots"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error       string `json:"error"`
	Status      int    `json:"status"`
	Description string `json:"description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

func newSourceResponse(spec entity.GrabberSpec) SourceResponse {
	resp := SourceResponse{
		Source:                   spec.Source,
		BaseCurrencyCodes:        spec.BaseCurrencyCodes,
		DestinationCurrencyCodes: spec.DestinationCurrencyCodes,
	}
	if resp.BaseCurrencyCodes == nil {
		resp.BaseCurrencyCodes = []string{}
	}
	if resp.DestinationCurrencyCodes == nil {
		resp.DestinationCurrencyCodes = []string{}
	}
	return resp
}

func newRateResponse(s entity.Snapshot) RateResponse {
	return RateResponse{
		Source:              s.Source,
		BaseCurrency:        s.BaseCurrency,
		DestinationCurrency: s.DestinationCurrency,
		BuyRate:             s.BuyRate,
		SaleRate:            s.SaleRate,
		Timestamp:           s.Timestamp.UTC().Format(time.RFC3339),
	}
}

func newRatesResponse(rates []*entity.ExchangeRate) RatesResponse {
	resp := RatesResponse{Rates: make([]RateResponse, 0, len(rates)), Count: len(rates)}
	for _, rate := range rates {
		resp.Rates = append(resp.Rates, newRateResponse(rate.Snapshot()))
	}
	return resp
}
