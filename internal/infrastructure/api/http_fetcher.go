package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
)

const (
	defaultUserAgent      = "exchange-rate-grabber/1.0"
	defaultConnectTimeout = 30 * time.Second
	defaultTimeout        = 30 * time.Second
)

// HTTPFetcher implements the Fetcher interface over net/http
type HTTPFetcher struct {
	userAgent string
	log       logger.Logger

	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

// NewHTTPFetcher creates a new HTTP fetcher
func NewHTTPFetcher(userAgent string, log logger.Logger) *HTTPFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &HTTPFetcher{
		userAgent: userAgent,
		log:       log,
		clients:   make(map[time.Duration]*http.Client),
	}
}

// Fetch downloads req and returns the response body
func (f *HTTPFetcher) Fetch(ctx context.Context, req service.Request) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	fullURL := req.FullURL()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, &entity.FetchError{URL: fullURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client(req.ConnectTimeout).Do(httpReq)
	if err != nil {
		return nil, &entity.FetchError{URL: fullURL, Err: err}
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.Warn("Error closing response body", map[string]interface{}{
				"url":   fullURL,
				"error": closeErr.Error(),
			})
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.FetchError{URL: fullURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	f.log.Debug("Source fetched", map[string]interface{}{
		"url":      fullURL,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).String(),
	})

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &entity.FetchError{URL: fullURL, StatusCode: resp.StatusCode}
	}

	if len(body) == 0 {
		return nil, &entity.FetchError{URL: fullURL, StatusCode: resp.StatusCode, Err: errors.New("empty response body")}
	}

	return body, nil
}

// client returns a client whose dialer gives up after connectTimeout.
// Clients are shared per connect timeout.
func (f *HTTPFetcher) client(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[connectTimeout]; ok {
		return c
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout

	c := &http.Client{Transport: transport}
	f.clients[connectTimeout] = c
	return c
}
