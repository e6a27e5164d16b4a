package service

import (
	"context"
	"net/url"
	"time"
)

// Request describes one download from a source
type Request struct {
	Method         string
	URL            string
	Query          url.Values
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// FullURL returns the URL with the encoded query appended
func (r Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Query.Encode()
}

// Fetcher defines the interface for downloading raw source documents
type Fetcher interface {
	// Fetch performs the request and returns the response body. Non-2xx
	// statuses, transport failures, timeouts and empty bodies are errors.
	Fetch(ctx context.Context, req Request) ([]byte, error)
}
