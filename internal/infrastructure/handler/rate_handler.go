// Package handler internal/infrastructure/handler/rate_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/damon-houk/exchange-rate-grabber/internal/application/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/validation"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/grabber"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/middleware"
	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// RateHandler handles HTTP requests for sources and exchange rates
type RateHandler struct {
	service *service.RateService
	logger  logger.Logger
}

// NewRateHandler creates a new rate handler
func NewRateHandler(service *service.RateService, log logger.Logger) *RateHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &RateHandler{
		service: service,
		logger:  log,
	}
}

// ListSources handles listing the enabled sources
func (h *RateHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	specs := h.service.Sources()

	resp := make([]SourceResponse, 0, len(specs))
	for _, spec := range specs {
		resp = append(resp, newSourceResponse(spec))
	}

	sendJSON(w, http.StatusOK, resp)
}

// GrabRates handles downloading every rate of a source, optionally
// restricted by the base and destination query parameters
func (h *RateHandler) GrabRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	source := mux.Vars(r)["source"]

	query := r.URL.Query()
	base, err := parseCodes("base", query["base"])
	if err != nil {
		sendErrorResponse(w, h.logger, "Invalid currency code", err.Error(), http.StatusBadRequest, requestID)
		return
	}
	destination, err := parseCodes("destination", query["destination"])
	if err != nil {
		sendErrorResponse(w, h.logger, "Invalid currency code", err.Error(), http.StatusBadRequest, requestID)
		return
	}

	rates, err := h.service.Grab(r.Context(), source, base, destination)
	if err != nil {
		h.sendServiceError(w, err, requestID, map[string]interface{}{"source": source})
		return
	}

	sendJSON(w, http.StatusOK, newRatesResponse(rates))
}

// ListRates handles listing every tracked rate
func (h *RateHandler) ListRates(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, newRatesResponse(h.service.Tracked()))
}

// GetRate handles retrieving one rate, grabbing it on first use
func (h *RateHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	key, err := rateKey(r)
	if err != nil {
		sendErrorResponse(w, h.logger, "Invalid currency code", err.Error(), http.StatusBadRequest, requestID)
		return
	}

	rate, err := h.service.Rate(r.Context(), key)
	if err != nil {
		h.sendServiceError(w, err, requestID, map[string]interface{}{"rate": key.String()})
		return
	}

	sendJSON(w, http.StatusOK, newRateResponse(rate.Snapshot()))
}

// RefreshRate handles re-grabbing a tracked rate
func (h *RateHandler) RefreshRate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	key, err := rateKey(r)
	if err != nil {
		sendErrorResponse(w, h.logger, "Invalid currency code", err.Error(), http.StatusBadRequest, requestID)
		return
	}

	rate, err := h.service.Refresh(r.Context(), key)
	if err != nil {
		h.sendServiceError(w, err, requestID, map[string]interface{}{"rate": key.String()})
		return
	}

	sendJSON(w, http.StatusOK, newRateResponse(rate.Snapshot()))
}

// UntrackRate handles forgetting a tracked rate and its history
func (h *RateHandler) UntrackRate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	key, err := rateKey(r)
	if err != nil {
		sendErrorResponse(w, h.logger, "Invalid currency code", err.Error(), http.StatusBadRequest, requestID)
		return
	}

	if err := h.service.Untrack(r.Context(), key); err != nil {
		h.sendServiceError(w, err, requestID, map[string]interface{}{"rate": key.String()})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles listing the recorded values of a rate
func (h *RateHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	key, err := rateKey(r)
	if err != nil {
		sendErrorResponse(w, h.logger, "Invalid currency code", err.Error(), http.StatusBadRequest, requestID)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxHistoryLimit {
			sendErrorResponse(w, h.logger, "Invalid limit",
				"The 'limit' query parameter must be between 1 and "+strconv.Itoa(maxHistoryLimit),
				http.StatusBadRequest, requestID)
			return
		}
	}

	snapshots, err := h.service.History(r.Context(), key, limit)
	if err != nil {
		h.sendServiceError(w, err, requestID, map[string]interface{}{"rate": key.String()})
		return
	}

	resp := HistoryResponse{
		Source:              key.Source,
		BaseCurrency:        key.Base,
		DestinationCurrency: key.Destination,
		Snapshots:           make([]RateResponse, 0, len(snapshots)),
	}
	for _, s := range snapshots {
		resp.Snapshots = append(resp.Snapshots, newRateResponse(s))
	}

	sendJSON(w, http.StatusOK, resp)
}

// RegisterRoutes registers the rate handler routes
func (h *RateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sources", h.ListSources).Methods("GET")
	router.HandleFunc("/sources/{source}/rates", h.GrabRates).Methods("GET")
	router.HandleFunc("/rates", h.ListRates).Methods("GET")
	router.HandleFunc("/rates/{source}/{base}/{destination}", h.GetRate).Methods("GET")
	router.HandleFunc("/rates/{source}/{base}/{destination}", h.UntrackRate).Methods("DELETE")
	router.HandleFunc("/rates/{source}/{base}/{destination}/refresh", h.RefreshRate).Methods("POST")
	router.HandleFunc("/rates/{source}/{base}/{destination}/history", h.GetHistory).Methods("GET")

	h.logger.Info("Rate routes registered", map[string]interface{}{
		"routes": []string{
			"GET /sources",
			"GET /sources/{source}/rates",
			"GET /rates",
			"GET /rates/{source}/{base}/{destination}",
			"DELETE /rates/{source}/{base}/{destination}",
			"POST /rates/{source}/{base}/{destination}/refresh",
			"GET /rates/{source}/{base}/{destination}/history",
		},
	})
}

// sendServiceError maps an error returned by the rate service to a response
func (h *RateHandler) sendServiceError(w http.ResponseWriter, err error, requestID string, fields map[string]interface{}) {
	fields["request_id"] = requestID
	fields["error"] = err.Error()

	switch {
	case errors.Is(err, service.ErrSourceNotFound), errors.Is(err, grabber.ErrUnknownSource):
		h.logger.Warn("Source not found", fields)
		sendErrorResponse(w, h.logger, "Source not found",
			"The requested source is unknown or disabled", http.StatusNotFound, requestID)
	case errors.Is(err, service.ErrRateNotFound):
		h.logger.Warn("Exchange rate not found", fields)
		sendErrorResponse(w, h.logger, "Exchange rate not found",
			"The source does not publish the requested currency pair", http.StatusNotFound, requestID)
	case errors.Is(err, entity.ErrUnexpectedResultCount):
		h.logger.Warn("Unexpected result count", fields)
		sendErrorResponse(w, h.logger, "Unexpected result count", err.Error(), http.StatusConflict, requestID)
	case errors.Is(err, entity.ErrFetchFailed):
		h.logger.Error("Source unavailable", fields)
		sendErrorResponse(w, h.logger, "Source unavailable",
			"The source could not be downloaded. Please try again later.", http.StatusBadGateway, requestID)
	case errors.Is(err, entity.ErrSourceLayoutChanged),
		errors.Is(err, entity.ErrMalformedPayload),
		errors.Is(err, entity.ErrInvalidFieldValue):
		h.logger.Error("Source changed", fields)
		sendErrorResponse(w, h.logger, "Source changed",
			"The source no longer matches its expected layout: "+err.Error(), http.StatusBadGateway, requestID)
	default:
		h.logger.Error("Unexpected error in rate handler", fields)
		sendErrorResponse(w, h.logger, "Internal server error",
			"An unexpected error occurred. Please try again later.", http.StatusInternalServerError, requestID)
	}
}

// rateKey reads the rate identity from the route variables
func rateKey(r *http.Request) (entity.Key, error) {
	vars := mux.Vars(r)

	base, err := validation.CurrencyCode("base", strings.ToUpper(vars["base"]))
	if err != nil {
		return entity.Key{}, err
	}
	destination, err := validation.CurrencyCode("destination", strings.ToUpper(vars["destination"]))
	if err != nil {
		return entity.Key{}, err
	}

	return entity.Key{Source: vars["source"], Base: base, Destination: destination}, nil
}

// parseCodes accepts repeated and comma-separated currency codes
func parseCodes(field string, values []string) ([]string, error) {
	var codes []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			code, err := validation.CurrencyCode(field, strings.ToUpper(part))
			if err != nil {
				return nil, err
			}
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// sendErrorResponse sends a standardized error response
func sendErrorResponse(w http.ResponseWriter, log logger.Logger, message, description string, statusCode int, requestID string) {
	log.Debug("Sending error response", map[string]interface{}{
		"request_id":  requestID,
		"status_code": statusCode,
		"message":     message,
	})

	sendJSON(w, statusCode, ErrorResponse{
		Error:       message,
		Status:      statusCode,
		Description: description,
		RequestID:   requestID,
	})
}
