package tracekit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPExporter POSTs span batches as JSON to a collector endpoint.
//
// Transport-level retries are handled by retryablehttp inside the exporter;
// the processor above still makes a single Export attempt per batch, and the
// whole request (retries included) is bounded by the ctx Export receives.
type HTTPExporter struct {
	client   *retryablehttp.Client
	endpoint string
	headers  map[string]string
}

// HTTPOption configures an HTTPExporter.
type HTTPOption func(*HTTPExporter)

// WithHTTPHeader adds a header to every export request.
func WithHTTPHeader(key, value string) HTTPOption {
	return func(e *HTTPExporter) {
		e.headers[key] = value
	}
}

// WithHTTPRetryMax sets the maximum number of transport retries per request.
func WithHTTPRetryMax(n int) HTTPOption {
	return func(e *HTTPExporter) {
		if n >= 0 {
			e.client.RetryMax = n
		}
	}
}

// WithHTTPClient replaces the underlying retryable client.
func WithHTTPClient(client *retryablehttp.Client) HTTPOption {
	return func(e *HTTPExporter) {
		if client != nil {
			e.client = client
		}
	}
}

// NewHTTPExporter creates an exporter shipping batches to endpoint.
func NewHTTPExporter(endpoint string, opts ...HTTPOption) *HTTPExporter {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil // Telemetry transport stays quiet.

	e := &HTTPExporter{
		client:   client,
		endpoint: endpoint,
		headers:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export marshals the batch and POSTs it. A non-2xx response is a failure.
func (e *HTTPExporter) Export(ctx context.Context, spans []Span) error {
	body, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch to %s: %w", e.endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Nothing useful to do with a close error here.

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}

// Shutdown closes idle transport connections.
func (e *HTTPExporter) Shutdown(context.Context) error {
	e.client.HTTPClient.CloseIdleConnections()
	return nil
}
