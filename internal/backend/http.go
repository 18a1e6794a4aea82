// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/dashline/internal/config"
	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/metrics"
)

const (
	restPath     = "/rest/v1/"
	functionPath = "/functions/v1/"

	// maxErrorBodySize bounds how much of an error response is kept.
	maxErrorBodySize = 64 * 1024

	defaultMaxBodySize = 8 << 20
)

// HTTPClient is the production Backend over HTTP.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	limiter     *rate.Limiter
	maxBodySize int64
}

// NewHTTPClient builds a client from configuration.
func NewHTTPClient(cfg *config.BackendConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBody := cfg.MaxResponseBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	c := &HTTPClient{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		apiKey:      cfg.AnonKey,
		client:      &http.Client{Timeout: timeout},
		maxBodySize: maxBody,
	}
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}
	return c
}

// Query implements Backend.
func (c *HTTPClient) Query(ctx context.Context, q Query) ([]Row, error) {
	qs, err := q.Encode()
	if err != nil {
		return nil, &permanentError{err: err}
	}

	body, err := c.do(ctx, http.MethodGet, "query", q.Table, restPath+q.Table+"?"+qs, nil)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &permanentError{err: fmt.Errorf("decode %s rows: %w", q.Table, err)}
	}
	return rows, nil
}

// Invoke implements Backend.
func (c *HTTPClient) Invoke(ctx context.Context, function string, body any) (json.RawMessage, error) {
	if function == "" {
		return nil, &permanentError{err: fmt.Errorf("%w: function name is required", ErrInvalidQuery)}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &permanentError{err: fmt.Errorf("encode %s body: %w", function, err)}
		}
	}

	resp, err := c.do(ctx, http.MethodPost, "function", function, functionPath+function, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(resp) {
		return nil, &permanentError{err: fmt.Errorf("function %s returned invalid JSON", function)}
	}
	return json.RawMessage(resp), nil
}

// Ping checks reachability of the row API root.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "ping", "root", restPath, nil)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, kind, target, path string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("backend rate limiter: %w", err)
		}
	}

	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(kind, target, "error", time.Since(start))
		return nil, fmt.Errorf("backend %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	metrics.RecordBackendRequest(kind, target, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method: method,
			Target: target,
			Status: resp.StatusCode,
			Body:   string(readBodyForError(resp.Body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: read body: %w", method, target, err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, &permanentError{err: fmt.Errorf("%w: %s %s", ErrResponseTooLarge, method, target)}
	}

	logging.Ctx(ctx).Debug().
		Str("kind", kind).
		Str("target", target).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Backend request completed")
	return body, nil
}

// readBodyForError reads at most maxErrorBodySize bytes of an error body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
